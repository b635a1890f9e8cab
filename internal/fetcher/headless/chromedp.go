// Package headless drives a real Chrome through chromedp for pages that only
// render their content with JavaScript.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

// Config controls the browser launched for each session.
type Config struct {
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath          string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	// ReadTimeout bounds a single element read.
	ReadTimeout  time.Duration
	WindowWidth  int
	WindowHeight int
}

// Browser opens chromedp-backed sessions from a shared allocator.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ traversal.Opener = (*Browser)(nil)

// NewChromedp creates a browser allocator. Chrome is not started until the
// first session is opened.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func chromeFlags(cfg Config) map[string]any {
	flags := map[string]any{
		"disable-gpu":                    true,
		"hide-scrollbars":                true,
		"enable-automation":              false,
		"disable-blink-features":         "AutomationControlled",
		"no-sandbox":                     true,
		"disable-dev-shm-usage":          true,
		"disable-software-rasterizer":    true,
		"disable-background-networking":  true,
		"disable-renderer-backgrounding": true,
	}
	if cfg.Headless {
		flags["headless"] = "new"
	} else {
		flags["headless"] = false
	}
	w, h := cfg.WindowWidth, cfg.WindowHeight
	if w == 0 || h == 0 {
		w, h = 1920, 1080
	}
	flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	return flags
}

// Close stops the allocator and any browser it launched.
func (b *Browser) Close() {
	b.allocCancel()
}

// Open starts a browser tab owned by the caller until Session.Close. The tab
// is also torn down when ctx is canceled.
func (b *Browser) Open(ctx context.Context) (traversal.Session, error) {
	taskCtx, cancel := chromedp.NewContext(b.allocator)
	stop := context.AfterFunc(ctx, cancel)
	if err := chromedp.Run(taskCtx, b.setupAction()); err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &session{
		ctx:    taskCtx,
		cancel: cancel,
		stop:   stop,
		cfg:    b.cfg,
	}, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	cfg    Config
}

func (s *session) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *session) Navigate(_ context.Context, url string) error {
	if err := s.run(s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *session) AwaitElement(_ context.Context, id string, timeout time.Duration) (traversal.Element, error) {
	var nodes []*cdp.Node
	err := s.run(timeout, chromedp.Nodes("#"+id, &nodes, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil {
			return nil, fmt.Errorf("#%s after %s: %w", id, timeout, traversal.ErrElementTimeout)
		}
		return nil, fmt.Errorf("await #%s: %w", id, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("#%s: %w", id, traversal.ErrElementTimeout)
	}
	return &element{s: s, node: nodes[0]}, nil
}

func (s *session) FindAll(_ context.Context, selector string) ([]traversal.Element, error) {
	var nodes []*cdp.Node
	err := s.run(s.cfg.ReadTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", selector, mapStale(err))
	}
	return s.wrap(nodes), nil
}

func (s *session) CurrentURL(context.Context) (string, error) {
	var location string
	if err := s.run(s.cfg.ReadTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

func (s *session) HTML(context.Context) (string, error) {
	var html string
	if err := s.run(s.cfg.ReadTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (s *session) Close() error {
	s.stop()
	s.cancel()
	if err := s.ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (s *session) wrap(nodes []*cdp.Node) []traversal.Element {
	out := make([]traversal.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{s: s, node: n})
	}
	return out
}

type element struct {
	s    *session
	node *cdp.Node
}

func (e *element) Text(context.Context) (string, error) {
	var text string
	err := e.s.run(e.s.cfg.ReadTimeout, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	if err != nil {
		return "", fmt.Errorf("read text: %w", mapStale(err))
	}
	return text, nil
}

func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attribute(name)
	return v, ok, nil
}

func (e *element) FindAll(_ context.Context, selector string) ([]traversal.Element, error) {
	var nodes []*cdp.Node
	err := e.s.run(e.s.cfg.ReadTimeout, chromedp.Nodes(selector, &nodes,
		chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", selector, mapStale(err))
	}
	return e.s.wrap(nodes), nil
}

// mapStale converts the errors Chrome reports for detached or vanished nodes
// into traversal.ErrStaleElement. Read timeouts pass through unchanged: a hung
// browser is a traversal failure, not a stale row.
func mapStale(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "node with given id"),
		strings.Contains(msg, "node is detached"),
		strings.Contains(msg, "no node found"):
		return fmt.Errorf("%w: %v", traversal.ErrStaleElement, err)
	default:
		return err
	}
}
