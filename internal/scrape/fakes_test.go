package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeNode is an element with optional attributes, text, and children keyed by selector.
type fakeNode struct {
	attrs    map[string]string
	text     string
	textErr  error
	children map[string]*fakeNode
	queryErr map[string]error
}

func (n *fakeNode) Query(_ context.Context, selector string) (Node, bool, error) {
	if err, ok := n.queryErr[selector]; ok {
		return nil, false, err
	}
	child, ok := n.children[selector]
	if !ok {
		return nil, false, nil
	}
	return child, true, nil
}

func (n *fakeNode) Attribute(_ context.Context, name string) (string, bool, error) {
	value, ok := n.attrs[name]
	return value, ok, nil
}

func (n *fakeNode) Text(context.Context) (string, error) {
	if n.textErr != nil {
		return "", n.textErr
	}
	return n.text, nil
}

type fakePage struct {
	mu        sync.Mutex
	present   map[string]bool
	items     []Node
	navErr    error
	html      string
	navigated []string
	waited    []string
	closed    bool
	events    *[]string
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) WaitForSelector(_ context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = append(p.waited, selector)
	if !p.present[selector] {
		return fmt.Errorf("waiting for %q: %w", selector, context.DeadlineExceeded)
	}
	if timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (p *fakePage) QueryAll(context.Context, string) ([]Node, error) {
	return p.items, nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	return p.html, nil
}

func (p *fakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.events != nil {
		*p.events = append(*p.events, "page.close")
	}
	return nil
}

type fakeBrowser struct {
	page    *fakePage
	openErr error
	opened  int
}

func (b *fakeBrowser) Open(context.Context) (Page, error) {
	b.opened++
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

type insertedDoc struct {
	collection string
	record     ProductRecord
}

type fakeSession struct {
	mu       sync.Mutex
	docs     []insertedDoc
	calls    int
	failOn   map[int]error
	closed   bool
	closeErr error
	events   *[]string
}

func (s *fakeSession) Insert(_ context.Context, collection string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.failOn[s.calls]; ok {
		return err
	}
	rec, ok := doc.(ProductRecord)
	if !ok {
		return fmt.Errorf("unexpected document type %T", doc)
	}
	s.docs = append(s.docs, insertedDoc{collection: collection, record: rec})
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.events != nil {
		*s.events = append(*s.events, "session.close")
	}
	return s.closeErr
}

type fakeConnector struct {
	session  *fakeSession
	err      error
	connects int
	lastURI  string
}

func (c *fakeConnector) Connect(_ context.Context, uri string) (Session, error) {
	c.connects++
	c.lastURI = uri
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type fakePublisher struct {
	topic    string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.topic = topic
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type fakeBlobStore struct {
	path        string
	contentType string
	body        string
}

func (b *fakeBlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	b.path = path
	b.contentType = contentType
	b.body = string(raw)
	return "memory://" + path, nil
}

type fakeObserver struct {
	items   map[string]int
	reports []Report
}

func (o *fakeObserver) ObserveItem(status string) {
	if o.items == nil {
		o.items = map[string]int{}
	}
	o.items[status]++
}

func (o *fakeObserver) ObserveRun(report Report) {
	o.reports = append(o.reports, report)
}
