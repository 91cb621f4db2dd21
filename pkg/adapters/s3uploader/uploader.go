// Package s3uploader stores finished archives in S3-compatible object storage.
package s3uploader

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/user/capturedriver/pkg/ports"
)

// DefaultEndpoint is used when no custom endpoint is configured.
const DefaultEndpoint = "https://s3.amazonaws.com"

// Options configures the uploader.
type Options struct {
	Endpoint  string // Full URL, e.g. https://minio.local:9000 (AWS_ENDPOINT)
	AccessKey string
	SecretKey string
	Region    string
	PathStyle bool   // Force path-style bucket addressing
	ACL       string // Canned ACL applied to uploaded objects, e.g. public-read
}

// Uploader implements ports.Uploader and ports.Presigner with minio-go.
type Uploader struct {
	client *minio.Client
	acl    string
	logger ports.Logger
}

// New creates an Uploader. No network traffic happens until the first call.
func New(opts Options, logger ports.Logger) (*Uploader, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       secure,
		Region:       opts.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Uploader{
		client: client,
		acl:    opts.ACL,
		logger: logger.WithComponent("upload"),
	}, nil
}

// Upload copies the file at localPath to destURL (s3://bucket/key).
func (u *Uploader) Upload(ctx context.Context, localPath, destURL string) error {
	bucket, key, err := ParseS3URL(destURL)
	if err != nil {
		return err
	}

	putOpts := minio.PutObjectOptions{ContentType: contentType(key)}
	if u.acl != "" {
		putOpts.UserMetadata = map[string]string{"x-amz-acl": u.acl}
	}

	info, err := u.client.FPutObject(ctx, bucket, key, localPath, putOpts)
	if err != nil {
		return fmt.Errorf("upload %s to %s: %w", localPath, destURL, err)
	}
	u.logger.Debug("Uploaded %d bytes to %s", info.Size, destURL)
	return nil
}

// PresignGet returns a download link for destURL that saves as downloadName.
func (u *Uploader) PresignGet(ctx context.Context, destURL, downloadName string, expiry time.Duration) (string, error) {
	bucket, key, err := ParseS3URL(destURL)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadName))
	}

	signed, err := u.client.PresignedGetObject(ctx, bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", destURL, err)
	}
	return signed.String(), nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse storage url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("storage url %q: scheme must be s3", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage url %q: missing bucket or key", raw)
	}
	return bucket, key, nil
}

func parseEndpoint(raw string) (host string, secure bool, err error) {
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme != "http", nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".wacz"):
		return "application/wacz"
	case strings.HasSuffix(key, ".warc"), strings.HasSuffix(key, ".warc.gz"):
		return "application/warc"
	default:
		return "application/octet-stream"
	}
}

// Ensure Uploader implements the storage ports
var (
	_ ports.Uploader  = (*Uploader)(nil)
	_ ports.Presigner = (*Uploader)(nil)
)
