// Package chromebrowser provides a browser implementation using chromedp.
// It attaches to a browser that is already running elsewhere and drives one tab.
package chromebrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/media"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/user/capturedriver/pkg/netidle"
	"github.com/user/capturedriver/pkg/ports"
)

const (
	// DefaultPort is the DevTools control port.
	DefaultPort = 9222
	// DefaultRetryInterval is the delay between attach attempts.
	DefaultRetryInterval = 500 * time.Millisecond
)

// ErrNotConnected is returned by page operations before Connect succeeds.
var ErrNotConnected = errors.New("browser not connected")

// Browser implements ports.Browser using chromedp.
type Browser struct {
	logger ports.Logger
	client *http.Client

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool

	network *hub[struct{}]
	media   *hub[ports.MediaEvent]

	playersMu sync.Mutex
	players   map[string]bool
}

// New creates a new Browser.
func New(logger ports.Logger) *Browser {
	return &Browser{
		logger:  logger.WithComponent("browser"),
		client:  &http.Client{Timeout: 5 * time.Second},
		network: newHub[struct{}](),
		media:   newHub[ports.MediaEvent](),
		players: make(map[string]bool),
	}
}

// Connect resolves the browser host and attaches to its DevTools endpoint,
// retrying until it succeeds or ctx is cancelled.
func (b *Browser) Connect(ctx context.Context, opts ports.ConnectOptions) error {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	attempt := 0
	for {
		attempt++
		err := b.attach(ctx, opts)
		if err == nil {
			b.logger.Info("Attached to browser at %s:%d", opts.Host, opts.Port)
			return nil
		}
		b.logger.Debug("Browser not reachable yet (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

func (b *Browser) attach(ctx context.Context, opts ports.ConnectOptions) error {
	ip, err := resolveHost(ctx, opts.Host)
	if err != nil {
		return err
	}
	endpoint := endpointURL(ip, opts.Port)

	targets, err := b.listTargets(ctx, endpoint)
	if err != nil {
		return err
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	var ctxOpts []chromedp.ContextOption
	if id, ok := pickPageTarget(targets); ok {
		ctxOpts = append(ctxOpts, chromedp.WithTargetID(target.ID(id)))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	chromedp.ListenTarget(tabCtx, b.onEvent)

	// Attaching happens on the first Run; bound it by the caller's ctx.
	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	err = chromedp.Run(runCtx, network.Enable())
	stop()
	cancel()
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("attach to %s: %w", endpoint, err)
	}

	b.mu.Lock()
	b.allocCancel = allocCancel
	b.ctx = tabCtx
	b.cancel = tabCancel
	b.closed = false
	b.mu.Unlock()
	return nil
}

// targetInfo is one entry of the DevTools /json/list response.
type targetInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (b *Browser) listTargets(ctx context.Context, endpoint string) ([]targetInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list targets: status %d", resp.StatusCode)
	}

	var targets []targetInfo
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	return targets, nil
}

// pickPageTarget returns the id of the first open page, if any.
func pickPageTarget(targets []targetInfo) (string, bool) {
	for _, t := range targets {
		if t.Type == "page" {
			return t.ID, true
		}
	}
	return "", false
}

func resolveHost(ctx context.Context, host string) (string, error) {
	if host == "" {
		host = "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	return addrs[0], nil
}

func endpointURL(ip string, port int) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(port))
}

func (b *Browser) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventLoadingFinished:
		b.network.broadcast(struct{}{})
	case *media.EventPlayerEventsAdded:
		id := string(e.PlayerID)
		if b.firstSeen(id) {
			b.media.broadcast(ports.MediaEvent{PlayerID: id, Kind: ports.PlayerCreated})
		}
		for _, pe := range e.Events {
			if pe == nil {
				continue
			}
			if kind, ok := mediaKind(pe.Value); ok {
				b.media.broadcast(ports.MediaEvent{PlayerID: id, Kind: kind})
			}
		}
	}
}

func (b *Browser) firstSeen(playerID string) bool {
	b.playersMu.Lock()
	defer b.playersMu.Unlock()
	if b.players[playerID] {
		return false
	}
	b.players[playerID] = true
	return true
}

// mediaKind maps a media player event value to a lifecycle kind.
func mediaKind(value string) (ports.MediaEventKind, bool) {
	switch value {
	case "kPlay":
		return ports.PlayerStarted, true
	case "kEnded":
		return ports.PlayerEnded, true
	default:
		return 0, false
	}
}

func (b *Browser) tab() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil || b.closed {
		return nil, ErrNotConnected
	}
	return b.ctx, nil
}

// run executes actions on the tab, cancelled when either the tab or ctx ends.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := b.tab()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the requested page state.
func (b *Browser) Navigate(ctx context.Context, url string, opts ports.NavigateOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// chromedp.Navigate returns after the load event, which already
	// covers WaitLoad and WaitDOMContentLoaded.
	if opts.WaitUntil != ports.WaitNetworkIdle {
		return b.run(ctx, chromedp.Navigate(url))
	}

	events, unsubscribe := b.NetworkActivity()
	defer unsubscribe()
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	return netidle.Wait(ctx, events, opts.IdleTime)
}

// DisableCache turns off the HTTP cache and bypasses service workers.
func (b *Browser) DisableCache(ctx context.Context) error {
	return b.run(ctx,
		network.SetCacheDisabled(true),
		network.SetBypassServiceWorker(true),
	)
}

// Location returns the URL of the current document.
func (b *Browser) Location(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// FrameCount returns the main frame plus every iframe of the document.
func (b *Browser) FrameCount(ctx context.Context) (int, error) {
	frames, err := b.iframes(ctx)
	if err != nil {
		return 0, err
	}
	return len(frames) + 1, nil
}

func (b *Browser) iframes(ctx context.Context) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes("iframe", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return nodes, nil
}

// queryOpts scopes a selector query to the given frame.
func (b *Browser) queryOpts(ctx context.Context, frame int, by chromedp.QueryOption) ([]chromedp.QueryOption, error) {
	opts := []chromedp.QueryOption{by}
	if frame == 0 {
		return opts, nil
	}
	frames, err := b.iframes(ctx)
	if err != nil {
		return nil, err
	}
	if frame < 0 || frame > len(frames) {
		return nil, fmt.Errorf("frame %d not found (%d frames)", frame, len(frames)+1)
	}
	return append(opts, chromedp.FromNode(frames[frame-1])), nil
}

// WaitSelector blocks until selector matches in the given frame.
func (b *Browser) WaitSelector(ctx context.Context, frame int, selector string) error {
	opts, err := b.queryOpts(ctx, frame, chromedp.ByQuery)
	if err != nil {
		return err
	}
	return b.run(ctx, chromedp.WaitReady(selector, opts...))
}

// Count returns the number of elements matching selector in the given frame.
func (b *Browser) Count(ctx context.Context, frame int, selector string) (int, error) {
	opts, err := b.queryOpts(ctx, frame, chromedp.ByQueryAll)
	if err != nil {
		return 0, err
	}
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(selector, &nodes, append(opts, chromedp.AtLeast(0))...)); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Click clicks the first element matching selector in the given frame.
func (b *Browser) Click(ctx context.Context, frame int, selector string) error {
	opts, err := b.queryOpts(ctx, frame, chromedp.ByQuery)
	if err != nil {
		return err
	}
	return b.run(ctx, chromedp.Click(selector, opts...))
}

// ClickNth clicks the n-th element matching selector in the given frame.
func (b *Browser) ClickNth(ctx context.Context, frame int, selector string, n int) error {
	opts, err := b.queryOpts(ctx, frame, chromedp.ByQueryAll)
	if err != nil {
		return err
	}
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(selector, &nodes, append(opts, chromedp.AtLeast(0))...)); err != nil {
		return err
	}
	if n < 0 || n >= len(nodes) {
		return fmt.Errorf("click %s: index %d out of range (%d matches)", selector, n, len(nodes))
	}
	return b.run(ctx, chromedp.MouseClickNode(nodes[n]))
}

// Evaluate runs script in the main frame, awaiting a returned promise.
func (b *Browser) Evaluate(ctx context.Context, script string, res interface{}) error {
	return b.run(ctx, chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// Screenshot captures a PNG of the first element matching selector.
func (b *Browser) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", selector, err)
	}
	return buf, nil
}

// NetworkActivity subscribes to finished network requests.
func (b *Browser) NetworkActivity() (<-chan struct{}, func()) {
	return b.network.subscribe()
}

// MediaEvents enables the media domain and subscribes to player events.
func (b *Browser) MediaEvents(ctx context.Context) (<-chan ports.MediaEvent, func(), error) {
	events, unsubscribe := b.media.subscribe()
	if err := b.run(ctx, media.Enable()); err != nil {
		unsubscribe()
		return nil, nil, fmt.Errorf("enable media events: %w", err)
	}
	return events, unsubscribe, nil
}

// Close detaches from the browser. The remote browser keeps running.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.network.closeAll()
	b.media.closeAll()
	return nil
}

// Ensure Browser implements ports.Browser
var _ ports.Browser = (*Browser)(nil)
