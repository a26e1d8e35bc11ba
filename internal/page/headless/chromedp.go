// Package headless implements scrape.Browser with chromedp and headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 10 * time.Second
	defaultWindowWidth       = 1920
	defaultWindowHeight      = 1080
)

// Config controls the browser launched for each page.
type Config struct {
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	// ActionTimeout bounds each node query and read.
	ActionTimeout time.Duration
}

// Browser launches a dedicated Chrome process per opened page.
type Browser struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a chromedp-backed Browser.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout < 0 || cfg.ActionTimeout < 0 {
		return nil, fmt.Errorf("timeouts must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = defaultWindowWidth, defaultWindowHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}, nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", b.cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

// Open starts Chrome with a single tab. The returned Page must be closed.
func (b *Browser) Open(ctx context.Context) (scrape.Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	chromeLog := b.logger.Named("chrome").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(chromeLog.Debugf),
		chromedp.WithErrorf(chromeLog.Warnf),
	)

	stop := forwardCancel(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	b.logger.Debug("browser started", zap.Bool("headless", b.cfg.Headless))

	return &Page{
		tabCtx:        tabCtx,
		tabCancel:     tabCancel,
		allocCancel:   allocCancel,
		navTimeout:    b.cfg.NavigationTimeout,
		actionTimeout: b.cfg.ActionTimeout,
	}, nil
}

// Page is a single Chrome tab.
type Page struct {
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	allocCancel   context.CancelFunc
	navTimeout    time.Duration
	actionTimeout time.Duration
	closeOnce     sync.Once
	closeErr      error
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navTimeout, chromedp.Navigate(url))
}

// WaitForSelector waits until selector is present in the DOM.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q (%s): %w", selector, timeout, err)
	}
	return nil
}

// QueryAll returns the nodes matching selector without waiting for them.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]scrape.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, p.actionTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]scrape.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Node{page: p, node: n})
	}
	return out, nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close closes the tab and shuts the browser down. Repeated calls are no-ops.
func (p *Page) Close(context.Context) error {
	p.closeOnce.Do(func() {
		if p.tabCtx != nil {
			if err := chromedp.Cancel(p.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
				p.closeErr = fmt.Errorf("close tab: %w", err)
			}
		}
		if p.tabCancel != nil {
			p.tabCancel()
		}
		if p.allocCancel != nil {
			p.allocCancel()
		}
	})
	return p.closeErr
}

// Node wraps a DOM node resolved on a Page.
type Node struct {
	page *Page
	node *cdp.Node
}

func (n *Node) ids() []cdp.NodeID {
	return []cdp.NodeID{n.node.NodeID}
}

// Query returns the first descendant matching selector, without waiting.
func (n *Node) Query(ctx context.Context, selector string) (scrape.Node, bool, error) {
	var nodes []*cdp.Node
	if err := n.page.run(ctx, n.page.actionTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.FromNode(n.node), chromedp.AtLeast(0)),
	); err != nil {
		return nil, false, err
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &Node{page: n.page, node: nodes[0]}, true, nil
}

// Attribute reads the live value of attribute name.
func (n *Node) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	if err := n.page.run(ctx, n.page.actionTimeout,
		chromedp.AttributeValue(n.ids(), name, &value, &ok, chromedp.ByNodeID),
	); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

// Text returns the node's textContent.
func (n *Node) Text(ctx context.Context) (string, error) {
	var text string
	if err := n.page.run(ctx, n.page.actionTimeout,
		chromedp.TextContent(n.ids(), &text, chromedp.ByNodeID),
	); err != nil {
		return "", err
	}
	return text, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
