package ports

import (
	"context"
	"time"
)

// PendingSample is one observation of the recording proxy's in-flight writes.
type PendingSample struct {
	Count int   `json:"count"` // Number of in-flight write operations
	Size  int64 `json:"size"`  // Cumulative bytes written so far
}

// RecordingProxy abstracts the proxy that records browser traffic into an archive.
type RecordingProxy interface {
	// Pending samples the number and size of in-flight writes.
	Pending(ctx context.Context) (PendingSample, error)

	// Commit asks the proxy to finalize the archive for entryURL.
	// Any non-200 response is returned as an error.
	Commit(ctx context.Context, entryURL string) error

	// PutCustomRecord stores an out-of-band artifact tagged with a synthetic URL.
	PutCustomRecord(ctx context.Context, url, contentType string, body []byte) error

	// RecordURL fetches targetURL through the proxy's recording endpoint.
	// Any non-200 response is returned as an error.
	RecordURL(ctx context.Context, targetURL string) error

	// Exit notifies the proxy that the capture is over.
	Exit(ctx context.Context) error
}

// Uploader stores a finished archive at its destination.
type Uploader interface {
	// Upload copies the file at localPath to destURL (e.g. s3://bucket/key).
	Upload(ctx context.Context, localPath, destURL string) error
}

// Presigner issues time limited download links for stored archives.
// Uploaders may implement it; the access URL falls back to a template otherwise.
type Presigner interface {
	PresignGet(ctx context.Context, destURL, downloadName string, expiry time.Duration) (string, error)
}
