// Package commit implements the stage that finalizes the archive and stores it.
package commit

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
)

// PresignExpiry is the lifetime of presigned download links.
const PresignExpiry = 7 * 24 * time.Hour

// Stage asks the proxy to finalize the archive, then uploads it.
type Stage struct {
	proxy    ports.RecordingProxy
	uploader ports.Uploader
	logger   ports.Logger
}

// New creates a new commit stage. proxy and uploader may be nil.
func New(proxy ports.RecordingProxy, uploader ports.Uploader, logger ports.Logger) *Stage {
	return &Stage{
		proxy:    proxy,
		uploader: uploader,
		logger:   logger.WithComponent("commit"),
	}
}

// Execute commits and uploads. A rejected commit returns a KindCommit error
// and nothing is uploaded; a failed upload returns a KindUpload error.
func (s *Stage) Execute(ctx context.Context, input pipeline.CommitInput) (pipeline.CommitResult, error) {
	var result pipeline.CommitResult
	job := input.Job

	if s.proxy == nil {
		s.logger.Info("No recording proxy configured, nothing to commit")
		result.Skipped = true
		return result, nil
	}

	job.SetStatus("Requesting WACZ")
	if err := s.proxy.Commit(ctx, input.EntryURL); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Error("Failed to commit archive: %s", err)
		return result, capture.NewError(capture.KindCommit, err)
	}
	result.Committed = true
	s.logger.Info("Archive committed for %s", input.EntryURL)

	if s.uploader == nil || input.DestURL == "" {
		s.logger.Debug("No upload destination, keeping %s", input.ArchivePath)
		return result, nil
	}

	job.SetStatus("Uploading WACZ: " + input.ArchivePath)
	if err := s.uploader.Upload(ctx, input.ArchivePath, input.DestURL); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Error("Failed to upload archive: %s", err)
		return result, capture.NewError(capture.KindUpload, err)
	}
	result.Uploaded = true
	s.logger.Info("Archive uploaded to %s", input.DestURL)

	result.AccessURL = s.accessURL(ctx, input)
	if result.AccessURL != "" {
		job.SetAccessURL(result.AccessURL)
	}
	return result, nil
}

func (s *Stage) accessURL(ctx context.Context, input pipeline.CommitInput) string {
	if input.AccessTemplate != "" {
		return ExpandAccessURL(input.AccessTemplate, input.Job.ID(), input.DestURL, input.DownloadName)
	}
	presigner, ok := s.uploader.(ports.Presigner)
	if !ok {
		return ""
	}
	link, err := presigner.PresignGet(ctx, input.DestURL, input.DownloadName, PresignExpiry)
	if err != nil {
		s.logger.Warn("Failed to presign access URL: %s", err)
		return ""
	}
	return link
}

// ExpandAccessURL fills an access URL template. {jobid} is the job id,
// {filename} the last path element of destURL and {download} the name
// offered to downloaders.
func ExpandAccessURL(template, jobID, destURL, downloadName string) string {
	filename := ""
	if destURL != "" {
		filename = path.Base(destURL)
	}
	return strings.NewReplacer(
		"{jobid}", jobID,
		"{filename}", filename,
		"{download}", downloadName,
	).Replace(template)
}

// DownloadName returns the archive name offered to people downloading a
// capture of captureURL: host, port and UTC date.
func DownloadName(host, port string, now time.Time) string {
	return host + port + "-" + now.UTC().Format("2006-01-02") + ".wacz"
}
