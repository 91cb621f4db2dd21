package channel

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/capture"
)

func startServer(t *testing.T, runner Runner) (string, *capture.Registry) {
	t.Helper()
	h := NewHandler(runner, logger.NewNoop())
	h.Registry = capture.NewRegistry(0)
	h.ReadTimeout = 2 * time.Second

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), h.Registry
}

func TestChannel_SuccessfulCapture(t *testing.T) {
	endpoint, registry := startServer(t, RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		job.SetStatus("Loading Page")
		job.SetSizes(2048, 0)
		job.Finish("Done!")
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "https://example.com/", DialOptions{PingInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	final, err := client.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, final.Done)
	assert.Equal(t, "Done!", final.Status)
	assert.EqualValues(t, 2048, final.Size)
	assert.Equal(t, "https://example.com/", final.CaptureURL)

	require.NotEmpty(t, client.ID())
	job, ok := registry.Get(client.ID())
	require.True(t, ok)
	assert.True(t, job.Snapshot().Succeeded())
}

func TestChannel_FailedCaptureSendsError(t *testing.T) {
	endpoint, _ := startServer(t, RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		job.Fail(capture.KindCommit)
		job.Finish("Failed: commit_failure")
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "https://example.com/", DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	final, err := client.Wait(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "commit_failure", remote.Reason)
	assert.True(t, final.Done)
}

func TestChannel_RunnerErrorFinishesJob(t *testing.T) {
	endpoint, _ := startServer(t, RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		return capture.NewError(capture.KindUpload, nil)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "https://example.com/", DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Wait(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, string(capture.KindUpload), remote.Reason)
}

func TestChannel_DisconnectCancelsJob(t *testing.T) {
	cancelled := make(chan error, 1)
	started := make(chan struct{})

	endpoint, registry := startServer(t, RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		job.Fail(capture.KindCanceled)
		job.Finish("Failed: canceled")
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, endpoint, "https://example.com/", DialOptions{})
	require.NoError(t, err)

	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("job never started")
	}
	require.Eventually(t, func() bool { return client.ID() != "" }, time.Second, 10*time.Millisecond)
	id := client.ID()
	require.NoError(t, client.Close())

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-ctx.Done():
		t.Fatal("closing the channel did not cancel the job")
	}

	job, ok := registry.Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return job.Snapshot().Done }, time.Second, 10*time.Millisecond)
	assert.Equal(t, capture.KindChannelDisconnect, job.Snapshot().Error)
}

func TestChannel_ServerDropsSilentClients(t *testing.T) {
	h := NewHandler(RunnerFunc(func(ctx context.Context, job *capture.Job) error { return nil }), logger.NewNoop())
	h.ReadTimeout = 50 * time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Never send the capture URL; the server gives up and closes.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestChannel_BaseContextCancelDrainsJobs(t *testing.T) {
	base, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	started := make(chan struct{})
	cancelled := make(chan error, 1)
	h := NewHandler(RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		job.Fail(capture.KindCanceled)
		job.Finish("Failed: canceled")
		return nil
	}), logger.NewNoop())
	h.BaseContext = base
	h.ReadTimeout = 2 * time.Second
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "https://example.com/", DialOptions{PingInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("job never started")
	}
	stopServing()

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-ctx.Done():
		t.Fatal("cancelling the base context did not reach the job")
	}

	drained := make(chan struct{})
	go func() {
		h.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		t.Fatal("Wait did not return after the job finished")
	}

	final, err := client.Wait(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, string(capture.KindCanceled), remote.Reason)
	assert.True(t, final.Done)
}
