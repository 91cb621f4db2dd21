package channel

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/ports"
)

// DefaultReadTimeout is how long the server waits for any client frame.
// Clients ping every 3 seconds, so a silent connection is considered gone.
const DefaultReadTimeout = 15 * time.Second

// Runner executes one capture job to completion.
type Runner interface {
	Run(ctx context.Context, job *capture.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *capture.Job) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job *capture.Job) error {
	return f(ctx, job)
}

// Handler serves the capture channel. Each connection runs one job;
// closing the connection cancels it.
type Handler struct {
	runner   Runner
	logger   ports.Logger
	upgrader websocket.Upgrader
	inflight sync.WaitGroup

	// BaseContext, when set, is the parent of every job context. Cancelling
	// it cancels all running jobs.
	BaseContext context.Context

	// Registry, when set, receives every job started on the channel.
	Registry    *capture.Registry
	ReadTimeout time.Duration
}

// NewHandler creates a Handler.
func NewHandler(runner Runner, logger ports.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: logger.WithComponent("channel"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ReadTimeout: DefaultReadTimeout,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		h.logger.Debug("Channel closed before a capture URL arrived: %v", err)
		return
	}

	job := capture.NewJob(strings.TrimSpace(string(first)))
	if h.Registry != nil {
		h.Registry.Add(job)
	}
	if err := conn.WriteMessage(websocket.TextMessage, EncodeID(job.ID())); err != nil {
		return
	}
	h.logger.Info("Capture %s requested for %s", job.ID(), job.Snapshot().CaptureURL)

	base := h.BaseContext
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	go h.readLoop(conn, job, cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := h.runner.Run(ctx, job)
		if err != nil {
			h.logger.Warn("Capture %s ended with error: %v", job.ID(), err)
		}
		// The write loop ends only once the job is done.
		if !job.Snapshot().Done {
			if kind := capture.KindOf(err); kind != capture.KindNone {
				job.Fail(kind)
			} else if err != nil {
				job.Fail(capture.KindInternal)
			}
			job.Finish("Done!")
		}
	}()

	h.writeLoop(conn, job, cancel)
	<-done
}

// Wait blocks until every connection being served has returned. Hijacked
// websocket connections outlive http.Server.Shutdown, so callers wait here
// for running jobs to finish their cleanup.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// readLoop consumes client pings. Any read failure means the client is gone.
func (h *Handler) readLoop(conn *websocket.Conn, job *capture.Job, cancel context.CancelFunc) {
	for {
		conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
		if _, _, err := conn.ReadMessage(); err != nil {
			if !job.Snapshot().Done {
				h.logger.Info("Capture %s cancelled (%s): %v", job.ID(), capture.KindCanceled, err)
				job.Fail(capture.KindChannelDisconnect)
			}
			cancel()
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, job *capture.Job, cancel context.CancelFunc) {
	updates, stop := job.Watch()
	defer stop()

	var last capture.Snapshot
	for snap := range updates {
		last = snap
		msg, err := EncodeStatus(snap)
		if err != nil {
			h.logger.Warn("Failed to encode status: %v", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			cancel()
			return
		}
	}

	if last.Error != capture.KindNone {
		conn.WriteMessage(websocket.TextMessage, EncodeError(string(last.Error)))
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
