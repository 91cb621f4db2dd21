// Package navigate implements the page loading stage.
package navigate

import (
	"context"
	"fmt"
	"time"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
)

// DefaultTimeout is the page load ceiling.
const DefaultTimeout = 60 * time.Second

// idleTime is the quiet window that counts as "loaded".
const idleTime = 500 * time.Millisecond

// Stage loads the capture target, or an embed wrapper page for it.
type Stage struct {
	browser  ports.Browser
	resolver ports.EmbedResolver
	proxy    ports.RecordingProxy
	logger   ports.Logger
}

// New creates a new navigate stage. resolver and proxy may be nil.
func New(browser ports.Browser, resolver ports.EmbedResolver, proxy ports.RecordingProxy, logger ports.Logger) *Stage {
	return &Stage{
		browser:  browser,
		resolver: resolver,
		proxy:    proxy,
		logger:   logger.WithComponent("navigate"),
	}
}

// Execute navigates the browser. A page that never finishes loading is not an
// error: the failure is logged and returned in the result. The only errors
// are a rejected embed and cancellation of ctx.
func (s *Stage) Execute(ctx context.Context, input pipeline.NavigateInput) (pipeline.NavigateResult, error) {
	job := input.Job
	result := pipeline.NavigateResult{EntryURL: input.URL}

	if input.DisableCache {
		job.SetStatus("Disabling Cache")
		if err := s.browser.DisableCache(ctx); err != nil {
			s.logger.Warn("Failed to disable cache: %s", err)
		}
	}

	if input.UseEmbed && s.resolver != nil {
		embedded, err := s.resolveEmbed(ctx, input, &result)
		if err != nil {
			return result, err
		}
		if !embedded {
			s.logger.Info("Not a known embed, loading %s", input.URL)
		}
	}

	if !result.Embedded {
		job.SetStatus("Loading Page: " + input.URL)
	}
	job.SetEntryURL(result.EntryURL)

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.logger.Debug("Navigating to %s", result.EntryURL)
	start := time.Now()
	err := s.browser.Navigate(ctx, result.EntryURL, ports.NavigateOptions{
		Timeout:   timeout,
		WaitUntil: ports.WaitNetworkIdle,
		IdleTime:  idleTime,
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.LoadErr = capture.NewError(capture.KindNavigation, err)
		s.logger.Warn("Failed to navigate: %s", err)
		return result, nil
	}

	s.logger.Debug("Page loaded in %d ms", time.Since(start).Milliseconds())
	return result, nil
}

func (s *Stage) resolveEmbed(ctx context.Context, input pipeline.NavigateInput, result *pipeline.NavigateResult) (bool, error) {
	input.Job.SetStatus("Getting Embed Info...")

	wrapper, meta, ok, err := s.resolver.Resolve(ctx, input.URL)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.logger.Warn("Embed lookup failed: %s", err)
		return false, nil
	}
	if !ok {
		return false, nil
	}

	if s.proxy != nil {
		probe := s.resolver.ProbeURL(input.URL)
		if err := s.proxy.RecordURL(ctx, probe); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.logger.Error("Embed rejected by recording proxy: %s", err)
			return false, capture.NewError(capture.KindInvalidEmbed, fmt.Errorf("%w: %v", capture.ErrInvalidEmbed, err))
		}
	}

	input.Job.SetEmbedMeta(meta)
	result.EntryURL = wrapper
	result.Embedded = true
	result.Meta = meta
	input.Job.SetStatus("Loading Embed: " + wrapper)
	return true, nil
}
