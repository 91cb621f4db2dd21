package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/user/capturedriver/pkg/ports"
)

// Proxy is a mock implementation of ports.RecordingProxy.
type Proxy struct {
	PendingFunc         func(ctx context.Context) (ports.PendingSample, error)
	CommitFunc          func(ctx context.Context, entryURL string) error
	PutCustomRecordFunc func(ctx context.Context, url, contentType string, body []byte) error
	RecordURLFunc       func(ctx context.Context, targetURL string) error
	ExitFunc            func(ctx context.Context) error

	// Samples, if PendingFunc is nil, are returned in order; the last one repeats.
	Samples []ports.PendingSample

	mu          sync.Mutex
	sampleIndex int
	CommitCalls []string
	Records     []CustomRecord
	ExitCalls   int
}

// CustomRecord records a call to PutCustomRecord.
type CustomRecord struct {
	URL         string
	ContentType string
	Body        []byte
}

func (m *Proxy) Pending(ctx context.Context) (ports.PendingSample, error) {
	if m.PendingFunc != nil {
		return m.PendingFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Samples) == 0 {
		return ports.PendingSample{}, nil
	}
	s := m.Samples[m.sampleIndex]
	if m.sampleIndex < len(m.Samples)-1 {
		m.sampleIndex++
	}
	return s, nil
}

func (m *Proxy) Commit(ctx context.Context, entryURL string) error {
	m.mu.Lock()
	m.CommitCalls = append(m.CommitCalls, entryURL)
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, entryURL)
	}
	return nil
}

func (m *Proxy) PutCustomRecord(ctx context.Context, url, contentType string, body []byte) error {
	m.mu.Lock()
	m.Records = append(m.Records, CustomRecord{URL: url, ContentType: contentType, Body: body})
	m.mu.Unlock()
	if m.PutCustomRecordFunc != nil {
		return m.PutCustomRecordFunc(ctx, url, contentType, body)
	}
	return nil
}

func (m *Proxy) RecordURL(ctx context.Context, targetURL string) error {
	if m.RecordURLFunc != nil {
		return m.RecordURLFunc(ctx, targetURL)
	}
	return nil
}

func (m *Proxy) Exit(ctx context.Context) error {
	m.mu.Lock()
	m.ExitCalls++
	m.mu.Unlock()
	if m.ExitFunc != nil {
		return m.ExitFunc(ctx)
	}
	return nil
}

// Commits returns the entry URLs passed to Commit.
func (m *Proxy) Commits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CommitCalls...)
}

// Exits returns how many times Exit was called.
func (m *Proxy) Exits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExitCalls
}

var _ ports.RecordingProxy = (*Proxy)(nil)

// Uploader is a mock implementation of ports.Uploader.
type Uploader struct {
	UploadFunc func(ctx context.Context, localPath, destURL string) error

	mu    sync.Mutex
	Calls []UploadCall
}

// UploadCall records a call to Upload.
type UploadCall struct {
	LocalPath string
	DestURL   string
}

func (m *Uploader) Upload(ctx context.Context, localPath, destURL string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, UploadCall{LocalPath: localPath, DestURL: destURL})
	m.mu.Unlock()
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, localPath, destURL)
	}
	return nil
}

// Uploads returns the recorded calls.
func (m *Uploader) Uploads() []UploadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UploadCall(nil), m.Calls...)
}

var _ ports.Uploader = (*Uploader)(nil)

// PresigningUploader is an Uploader that also implements ports.Presigner.
type PresigningUploader struct {
	Uploader
	PresignGetFunc func(ctx context.Context, destURL, downloadName string, expiry time.Duration) (string, error)
}

func (m *PresigningUploader) PresignGet(ctx context.Context, destURL, downloadName string, expiry time.Duration) (string, error) {
	if m.PresignGetFunc != nil {
		return m.PresignGetFunc(ctx, destURL, downloadName, expiry)
	}
	return destURL + "?signed=1", nil
}

var _ ports.Presigner = (*PresigningUploader)(nil)

// Resolver is a mock implementation of ports.EmbedResolver.
type Resolver struct {
	ResolveFunc func(ctx context.Context, captureURL string) (string, ports.EmbedMeta, bool, error)

	// Prefix is used to build probe URLs (default: http://embedserver).
	Prefix string
}

func (m *Resolver) Resolve(ctx context.Context, captureURL string) (string, ports.EmbedMeta, bool, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, captureURL)
	}
	return "", ports.EmbedMeta{}, false, nil
}

func (m *Resolver) ProbeURL(captureURL string) string {
	prefix := m.Prefix
	if prefix == "" {
		prefix = "http://embedserver"
	}
	return prefix + "/info/" + captureURL
}

var _ ports.EmbedResolver = (*Resolver)(nil)
