package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/capturedriver/pkg/capture"
)

// DefaultPingInterval is how often the client proves it is still there.
const DefaultPingInterval = 3 * time.Second

// Update is one server event delivered to the client.
// Err is set on the final update of a failed capture.
type Update struct {
	ID       string
	Snapshot capture.Snapshot
	Err      error
}

// Client is one capture request over the channel.
type Client struct {
	conn    *websocket.Conn
	updates chan Update
	done    chan struct{}
	closed  chan struct{}

	writeMu sync.Mutex
	idMu    sync.Mutex
	id      string

	closeOnce sync.Once
}

// DialOptions configures Dial.
type DialOptions struct {
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Dial connects to the channel at endpoint (ws://host/api/capture) and
// requests a capture of captureURL.
func Dial(ctx context.Context, endpoint, captureURL string, opts DialOptions) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &Client{
		conn:    conn,
		updates: make(chan Update, 16),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	if err := c.write([]byte(captureURL)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send capture url: %w", err)
	}

	go c.readLoop()
	go c.pingLoop(opts.PingInterval)
	return c, nil
}

// ID returns the job id once the server has announced it.
func (c *Client) ID() string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return c.id
}

// Updates returns the stream of job updates. It is closed when the capture
// finishes, fails, or the connection goes away.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Wait consumes updates until the capture ends and returns the final snapshot.
func (c *Client) Wait(ctx context.Context) (capture.Snapshot, error) {
	var last capture.Snapshot
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return last, ctx.Err()
		case u, ok := <-c.updates:
			if !ok {
				if !last.Done {
					return last, fmt.Errorf("channel closed before the capture finished")
				}
				return last, nil
			}
			if u.Err != nil {
				return last, u.Err
			}
			last = u.Snapshot
		}
	}
}

// Close ends the request. The server cancels the job.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.updates)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := Decode(data)
		if err != nil {
			continue
		}

		switch msg.Type {
		case MessageID:
			c.idMu.Lock()
			c.id = msg.ID
			c.idMu.Unlock()
		case MessageStatus:
			if !c.send(Update{ID: c.ID(), Snapshot: msg.Status}) {
				return
			}
			if msg.Status.Done && msg.Status.Error == capture.KindNone {
				return
			}
		case MessageError:
			c.send(Update{ID: c.ID(), Err: &RemoteError{Reason: msg.Reason}})
			return
		}
	}
}

func (c *Client) send(u Update) bool {
	select {
	case c.updates <- u:
		return true
	case <-c.closed:
		return false
	}
}

func (c *Client) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write([]byte(PingMessage)); err != nil {
				return
			}
		}
	}
}
