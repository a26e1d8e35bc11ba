// Package static implements scrape.Browser over server-rendered HTML fetched
// with Colly and queried with goquery. No JavaScript is executed.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

// ErrSelectorNotFound is returned when a readiness marker is absent. A static
// document never changes, so waiting longer cannot help.
var ErrSelectorNotFound = errors.New("selector not present in static document")

// Config controls the HTTP fetch.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Browser fetches documents over plain HTTP.
type Browser struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a static Browser.
func New(cfg Config, logger *zap.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    logger,
	}
}

// Open returns an empty Page; call Navigate to load it.
func (b *Browser) Open(context.Context) (scrape.Page, error) {
	return &Page{browser: b}, nil
}

// Page holds one parsed document.
type Page struct {
	browser *Browser
	url     string
	doc     *goquery.Document
}

// Navigate fetches url and parses the response body.
func (p *Page) Navigate(ctx context.Context, url string) error {
	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	collector := colly.NewCollector(colly.Async(false), colly.StdlibContext(ctx))
	collector.WithTransport(p.browser.transport)
	collector.SetRequestTimeout(p.browser.cfg.Timeout)
	if p.browser.cfg.UserAgent != "" {
		collector.UserAgent = p.browser.cfg.UserAgent
	}
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range p.browser.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	p.url = finalURL
	p.doc = doc
	p.browser.logger.Debug("static page loaded", zap.String("url", finalURL), zap.Int("bytes", len(body)))
	return nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (p *Page) document() (*goquery.Document, error) {
	if p.doc == nil {
		return nil, errors.New("page has not been navigated")
	}
	return p.doc, nil
}

// WaitForSelector checks selector against the loaded document.
func (p *Page) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	doc, err := p.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%q: %w", selector, ErrSelectorNotFound)
	}
	return nil
}

// QueryAll returns every match of selector in document order.
func (p *Page) QueryAll(_ context.Context, selector string) ([]scrape.Node, error) {
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	var nodes []scrape.Node
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &Node{sel: s})
	})
	return nodes, nil
}

// HTML renders the parsed document.
func (p *Page) HTML(context.Context) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return html, nil
}

// Close drops the parsed document.
func (p *Page) Close(context.Context) error {
	p.doc = nil
	return nil
}

// Node wraps a single-element goquery selection.
type Node struct {
	sel *goquery.Selection
}

// Query returns the first descendant matching selector.
func (n *Node) Query(_ context.Context, selector string) (scrape.Node, bool, error) {
	match := n.sel.Find(selector).First()
	if match.Length() == 0 {
		return nil, false, nil
	}
	return &Node{sel: match}, true, nil
}

// Attribute returns the named attribute.
func (n *Node) Attribute(_ context.Context, name string) (string, bool, error) {
	value, ok := n.sel.Attr(name)
	return value, ok, nil
}

// Text returns the combined text content.
func (n *Node) Text(context.Context) (string, error) {
	return n.sel.Text(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
