package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/mocks"
	"github.com/user/capturedriver/pkg/pipeline"
	"github.com/user/capturedriver/pkg/ports"
	"github.com/user/capturedriver/pkg/stages/commit"
	"github.com/user/capturedriver/pkg/stages/interact"
	"github.com/user/capturedriver/pkg/stages/navigate"
	"github.com/user/capturedriver/pkg/stages/settle"
)

const pageURL = "https://example.com/article"

type fixture struct {
	browser  *mocks.Browser
	proxy    *mocks.Proxy
	uploader *mocks.Uploader
	resolver *mocks.Resolver
	fs       *mocks.FileSystem
	sink     *mocks.DebugSink
}

func newFixture() *fixture {
	return &fixture{
		browser:  &mocks.Browser{},
		proxy:    &mocks.Proxy{Samples: []ports.PendingSample{{Count: 0, Size: 1000}}},
		uploader: &mocks.Uploader{},
		resolver: &mocks.Resolver{},
		fs:       mocks.NewFileSystem(),
		sink:     mocks.NewDebugSink(true),
	}
}

func (f *fixture) driver() *Driver {
	log := logger.NewNoop()

	dispatcher := behavior.NewDispatcher(behavior.DefaultRules(), log)
	dispatcher.IdleWindow = 5 * time.Millisecond

	interactStage := interact.New(f.browser, dispatcher, f.proxy, f.sink, log)
	interactStage.Timing = behavior.Timing{
		FrameWait: 10 * time.Millisecond, FramePoll: time.Millisecond, PlayWait: 10 * time.Millisecond,
		SlideWait: time.Millisecond, ControlWait: time.Millisecond, Settle: time.Millisecond, Prepare: time.Millisecond,
	}

	settleStage := settle.New(f.proxy, log)
	settleStage.Interval = time.Millisecond

	stages := Stages{
		Navigate: navigate.New(f.browser, f.resolver, f.proxy, log),
		Interact: interactStage,
		Settle:   settleStage,
		Commit:   commit.New(f.proxy, f.uploader, log),
	}
	return New(f.browser, stages, f.proxy, f.fs, f.sink, log)
}

func testConfig() Config {
	c := DefaultConfig()
	c.DestURL = "s3://captures/job.wacz"
	c.ExitFile = "/tmp/out/exit"
	return c
}

func TestDriver_Run_Success(t *testing.T) {
	f := newFixture()

	var mu sync.Mutex
	var order []string
	f.fs.TouchFunc = func(path string) error {
		mu.Lock()
		order = append(order, "touch:"+path)
		mu.Unlock()
		return nil
	}
	f.browser.CloseFunc = func() error {
		mu.Lock()
		order = append(order, "close")
		mu.Unlock()
		return nil
	}

	result := f.driver().Run(context.Background(), capture.NewJob(pageURL), testConfig())

	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (error %q)", result.ExitCode, result.Job.Error)
	}
	if result.Job.Phase != capture.PhaseDone || !result.Job.Done {
		t.Errorf("unexpected final snapshot %+v", result.Job)
	}
	if f.browser.Closed() != 1 {
		t.Errorf("expected the session to be closed once, got %d", f.browser.Closed())
	}
	if len(order) != 2 || order[0] != "touch:/tmp/out/exit" || order[1] != "close" {
		t.Errorf("expected exit file before close, got %v", order)
	}
	if commits := f.proxy.Commits(); len(commits) != 1 || commits[0] != pageURL {
		t.Errorf("unexpected commits %v", commits)
	}
	if len(f.uploader.Uploads()) != 1 {
		t.Errorf("expected one upload, got %d", len(f.uploader.Uploads()))
	}
	if f.proxy.Exits() != 1 {
		t.Errorf("expected proxy exit notification, got %d", f.proxy.Exits())
	}
	if !result.Settle.Settled {
		t.Error("expected pending writes to settle")
	}
	if f.sink.JobJSON == nil {
		t.Error("expected final job JSON in the debug sink")
	}
}

func TestDriver_Run_NoURL(t *testing.T) {
	f := newFixture()

	result := f.driver().Run(context.Background(), capture.NewJob(""), testConfig())

	if result.ExitCode != 0 {
		t.Errorf("a skipped run exits 0, got %d", result.ExitCode)
	}
	if result.Job.Phase != capture.PhaseSkipped {
		t.Errorf("expected skipped phase, got %q", result.Job.Phase)
	}
	if f.browser.Connected || f.browser.Closed() != 0 {
		t.Error("no browser session may be acquired without a url")
	}
}

func TestDriver_Run_InvalidURL(t *testing.T) {
	f := newFixture()

	result := f.driver().Run(context.Background(), capture.NewJob("ftp://example.com/file"), testConfig())

	if result.ExitCode != 1 || result.Job.Error != capture.KindInvalidURL {
		t.Errorf("unexpected result: exit %d, error %q", result.ExitCode, result.Job.Error)
	}
}

func TestDriver_Run_NavigationTimeoutProceeds(t *testing.T) {
	f := newFixture()
	f.browser.NavigateFunc = func(ctx context.Context, url string, opts ports.NavigateOptions) error {
		return context.DeadlineExceeded
	}
	scrolled := false
	f.browser.EvaluateFunc = func(ctx context.Context, script string, res interface{}) error {
		scrolled = true
		return nil
	}

	result := f.driver().Run(context.Background(), capture.NewJob(pageURL), testConfig())

	if !scrolled {
		t.Error("expected the behavior phase to run after a navigation timeout")
	}
	if result.ExitCode != 0 {
		t.Errorf("navigation timeout must not fail the job, got exit %d (%q)", result.ExitCode, result.Job.Error)
	}
	if capture.KindOf(result.Navigate.LoadErr) != capture.KindNavigation {
		t.Errorf("expected the load error to be reported, got %v", result.Navigate.LoadErr)
	}
}

func TestDriver_Run_CommitFailure(t *testing.T) {
	f := newFixture()
	f.proxy.CommitFunc = func(ctx context.Context, entryURL string) error {
		return errors.New("recording proxy returned 500")
	}

	result := f.driver().Run(context.Background(), capture.NewJob(pageURL), testConfig())

	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
	if result.Job.Phase != capture.PhaseErrored || result.Job.Error != capture.KindCommit {
		t.Errorf("unexpected final snapshot %+v", result.Job)
	}
	if !result.Job.Done {
		t.Error("an errored job is still done")
	}
	if len(f.uploader.Uploads()) != 0 {
		t.Error("no upload may be attempted")
	}
	if f.proxy.Exits() != 1 {
		t.Error("proxy exit is notified on failure too")
	}
	if f.browser.Closed() != 1 {
		t.Error("expected the session to be closed")
	}
}

func TestDriver_Run_UploadFailure(t *testing.T) {
	f := newFixture()
	f.uploader.UploadFunc = func(ctx context.Context, localPath, destURL string) error {
		return errors.New("no such bucket")
	}

	result := f.driver().Run(context.Background(), capture.NewJob(pageURL), testConfig())

	if result.ExitCode != 1 || result.Job.Error != capture.KindUpload {
		t.Errorf("unexpected result: exit %d, error %q", result.ExitCode, result.Job.Error)
	}
}

func TestDriver_Run_CancelTearsDownSession(t *testing.T) {
	f := newFixture()
	f.browser.EvaluateFunc = func(ctx context.Context, script string, res interface{}) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	config := testConfig()
	config.ScrollTimeout = time.Minute

	done := make(chan RunResult, 1)
	go func() { done <- f.driver().Run(ctx, capture.NewJob(pageURL), config) }()

	var result RunResult
	select {
	case result = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not observe cancellation")
	}

	if result.Job.Error != capture.KindCanceled || result.ExitCode != 1 {
		t.Errorf("unexpected result: exit %d, error %q", result.ExitCode, result.Job.Error)
	}
	if f.browser.Closed() != 1 {
		t.Error("expected the session to be torn down")
	}
	if len(f.proxy.Commits()) != 0 {
		t.Error("a cancelled job must not be committed")
	}
}

func TestDriver_Run_EmbedIncludesSourcePage(t *testing.T) {
	f := newFixture()
	const tweet = "https://twitter.com/jack/status/20"
	f.resolver.ResolveFunc = func(ctx context.Context, captureURL string) (string, ports.EmbedMeta, bool, error) {
		return "http://embedserver/e/" + captureURL, ports.EmbedMeta{Width: 550, Height: 300, Type: "tweet"}, true, nil
	}

	config := testConfig()
	config.UseEmbed = true

	result := f.driver().Run(context.Background(), capture.NewJob(tweet), config)

	if result.ExitCode != 0 {
		t.Fatalf("unexpected exit %d (%q)", result.ExitCode, result.Job.Error)
	}
	if len(f.browser.NavigateCalls) != 2 || f.browser.NavigateCalls[1] != tweet {
		t.Errorf("expected embed then source page, got %v", f.browser.NavigateCalls)
	}
	if commits := f.proxy.Commits(); len(commits) != 1 || commits[0] != "http://embedserver/e/"+tweet {
		t.Errorf("expected commit for the wrapper, got %v", commits)
	}
	if result.Job.Type != "tweet" || result.Job.EntryURL != "http://embedserver/e/"+tweet {
		t.Errorf("unexpected snapshot %+v", result.Job)
	}
}

type recordingNotifier struct {
	snaps []capture.Snapshot
}

func (n *recordingNotifier) Notify(ctx context.Context, snap capture.Snapshot) error {
	n.snaps = append(n.snaps, snap)
	return nil
}

func TestDriver_Run_Notifies(t *testing.T) {
	f := newFixture()
	d := f.driver()
	n := &recordingNotifier{}
	d.Notifier = n

	d.Run(context.Background(), capture.NewJob(pageURL), testConfig())

	if len(n.snaps) != 1 || !n.snaps[0].Done {
		t.Errorf("expected one final snapshot, got %+v", n.snaps)
	}
}

func TestDriver_Run_StageFuncs(t *testing.T) {
	browser := &mocks.Browser{}
	stages := Stages{
		Navigate: pipeline.StageFunc[pipeline.NavigateInput, pipeline.NavigateResult](func(ctx context.Context, in pipeline.NavigateInput) (pipeline.NavigateResult, error) {
			return pipeline.NavigateResult{}, capture.NewError(capture.KindInvalidEmbed, capture.ErrInvalidEmbed)
		}),
	}
	d := New(browser, stages, nil, nil, nil, logger.NewNoop())

	result := d.Run(context.Background(), capture.NewJob(pageURL), DefaultConfig())

	if result.Job.Error != capture.KindInvalidEmbed || result.ExitCode != 1 {
		t.Errorf("unexpected result: exit %d, error %q", result.ExitCode, result.Job.Error)
	}
	if browser.Closed() != 1 {
		t.Error("expected the session to be closed after a fatal navigation")
	}
}

func TestDriver_Run_UntypedStageErrorIsInternal(t *testing.T) {
	browser := &mocks.Browser{}
	stages := Stages{
		Navigate: pipeline.StageFunc[pipeline.NavigateInput, pipeline.NavigateResult](func(ctx context.Context, in pipeline.NavigateInput) (pipeline.NavigateResult, error) {
			return pipeline.NavigateResult{}, errors.New("boom")
		}),
	}
	d := New(browser, stages, nil, nil, nil, logger.NewNoop())

	result := d.Run(context.Background(), capture.NewJob(pageURL), DefaultConfig())

	if result.Job.Error != capture.KindInternal {
		t.Errorf("expected %q for an untyped stage error, got %q", capture.KindInternal, result.Job.Error)
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
}
