package settle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/mocks"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
)

func TestStage_NoProxy(t *testing.T) {
	stage := New(nil, logger.NewNoop())
	result, err := stage.Execute(context.Background(), pipeline.SettleInput{Job: capture.NewJob("https://example.com")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Skipped {
		t.Error("expected the stage to be skipped without a proxy")
	}
}

func TestStage_SettlesOnFirstPair(t *testing.T) {
	proxy := &mocks.Proxy{Samples: []ports.PendingSample{{Count: 0, Size: 1000}}}
	job := capture.NewJob("https://example.com")

	stage := New(proxy, logger.NewNoop())
	stage.Interval = time.Millisecond

	result, err := stage.Execute(context.Background(), pipeline.SettleInput{Job: job})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Settled || result.Samples != 2 {
		t.Errorf("expected to settle on the first pair, got %+v", result)
	}
	if job.Snapshot().Size != 1000 {
		t.Errorf("expected job size 1000, got %d", job.Snapshot().Size)
	}
}

func TestStage_Ceiling(t *testing.T) {
	proxy := &mocks.Proxy{Samples: []ports.PendingSample{{Count: 7, Size: 1000}}}

	stage := New(proxy, logger.NewNoop())
	stage.Interval = time.Millisecond

	start := time.Now()
	result, err := stage.Execute(context.Background(), pipeline.SettleInput{
		Job:     capture.NewJob("https://example.com"),
		Timeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("the ceiling is not an error, got %v", err)
	}
	if result.Settled {
		t.Error("did not expect to settle")
	}
	if time.Since(start) > time.Second {
		t.Error("ceiling was not honored")
	}
}

func TestStage_StrictThreshold(t *testing.T) {
	proxy := &mocks.Proxy{Samples: []ports.PendingSample{{Count: 1, Size: 1000}}}
	strict := -1

	stage := New(proxy, logger.NewNoop())
	stage.Interval = time.Millisecond
	stage.StableThreshold = &strict

	result, err := stage.Execute(context.Background(), pipeline.SettleInput{
		Job:     capture.NewJob("https://example.com"),
		Timeout: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Settled {
		t.Error("a stable non-zero count must not settle with the tolerance disabled")
	}
}

func TestStage_Cancelled(t *testing.T) {
	proxy := &mocks.Proxy{Samples: []ports.PendingSample{{Count: 7, Size: 1000}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := New(proxy, logger.NewNoop())
	_, err := stage.Execute(ctx, pipeline.SettleInput{Job: capture.NewJob("https://example.com")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
