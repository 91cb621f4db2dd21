package commit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/mocks"
	"github.com/user/capturedriver/pkg/pipeline"
)

func input(job *capture.Job) pipeline.CommitInput {
	return pipeline.CommitInput{
		Job:          job,
		EntryURL:     "http://embedserver/e/https://twitter.com/jack/status/20",
		ArchivePath:  "/tmp/out/archive.wacz",
		DestURL:      "s3://captures/abc.wacz",
		DownloadName: "twitter.com-2026-10-15.wacz",
	}
}

func TestStage_CommitAndUpload(t *testing.T) {
	proxy := &mocks.Proxy{}
	uploader := &mocks.Uploader{}
	job := capture.NewJobWithID("abc", "https://twitter.com/jack/status/20")

	in := input(job)
	in.AccessTemplate = "https://cdn.example.com/{jobid}/{filename}"

	result, err := New(proxy, uploader, logger.NewNoop()).Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Committed || !result.Uploaded {
		t.Errorf("unexpected result %+v", result)
	}
	if commits := proxy.Commits(); len(commits) != 1 || commits[0] != in.EntryURL {
		t.Errorf("expected commit for the entry url, got %v", commits)
	}
	uploads := uploader.Uploads()
	if len(uploads) != 1 || uploads[0].LocalPath != "/tmp/out/archive.wacz" || uploads[0].DestURL != "s3://captures/abc.wacz" {
		t.Errorf("unexpected uploads %v", uploads)
	}
	if result.AccessURL != "https://cdn.example.com/abc/abc.wacz" {
		t.Errorf("unexpected access url %q", result.AccessURL)
	}
	if job.Snapshot().AccessURL != result.AccessURL {
		t.Error("expected access url on the job")
	}
}

func TestStage_CommitFailureSkipsUpload(t *testing.T) {
	proxy := &mocks.Proxy{
		CommitFunc: func(ctx context.Context, entryURL string) error {
			return errors.New("recording proxy returned 500")
		},
	}
	uploader := &mocks.Uploader{}

	result, err := New(proxy, uploader, logger.NewNoop()).Execute(context.Background(), input(capture.NewJob("https://example.com")))

	if capture.KindOf(err) != capture.KindCommit {
		t.Fatalf("expected commit failure, got %v", err)
	}
	if result.Committed {
		t.Error("expected committed=false")
	}
	if len(uploader.Uploads()) != 0 {
		t.Error("no upload may be attempted after a failed commit")
	}
}

func TestStage_UploadFailure(t *testing.T) {
	uploader := &mocks.Uploader{
		UploadFunc: func(ctx context.Context, localPath, destURL string) error {
			return errors.New("access denied")
		},
	}

	result, err := New(&mocks.Proxy{}, uploader, logger.NewNoop()).Execute(context.Background(), input(capture.NewJob("https://example.com")))

	if capture.KindOf(err) != capture.KindUpload {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if !result.Committed || result.Uploaded {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestStage_Presigned(t *testing.T) {
	var gotName string
	uploader := &mocks.PresigningUploader{
		PresignGetFunc: func(ctx context.Context, destURL, downloadName string, expiry time.Duration) (string, error) {
			gotName = downloadName
			return "https://s3.example.com/captures/abc.wacz?X-Amz-Signature=f00", nil
		},
	}

	result, err := New(&mocks.Proxy{}, uploader, logger.NewNoop()).Execute(context.Background(), input(capture.NewJob("https://example.com")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AccessURL != "https://s3.example.com/captures/abc.wacz?X-Amz-Signature=f00" {
		t.Errorf("unexpected access url %q", result.AccessURL)
	}
	if gotName != "twitter.com-2026-10-15.wacz" {
		t.Errorf("unexpected download name %q", gotName)
	}
}

func TestStage_NoProxy(t *testing.T) {
	result, err := New(nil, &mocks.Uploader{}, logger.NewNoop()).Execute(context.Background(), input(capture.NewJob("https://example.com")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Skipped || result.Committed {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDownloadName(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)
	if got := DownloadName("example.com", "8080", now); got != "example.com8080-2026-10-15.wacz" {
		t.Errorf("unexpected name %q", got)
	}
}
