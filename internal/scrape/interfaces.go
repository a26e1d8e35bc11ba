package scrape

import (
	"context"
	"io"
	"time"
)

// Browser opens pages. Each opened Page owns its browser resources until closed.
type Browser interface {
	Open(ctx context.Context) (Page, error)
}

// Page is a loaded, queryable document.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForSelector blocks until selector matches or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// QueryAll returns every node matching selector in document order. No match
	// is an empty slice, not an error.
	QueryAll(ctx context.Context, selector string) ([]Node, error)
	Close(ctx context.Context) error
}

// Node is one element handle within a Page.
type Node interface {
	// Query returns the first descendant matching selector; ok is false when
	// nothing matches.
	Query(ctx context.Context, selector string) (node Node, ok bool, err error)
	// Attribute returns the named attribute; ok is false when it is not set.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	// Text returns the raw text content of the node.
	Text(ctx context.Context) (string, error)
}

// Snapshotter is implemented by pages that can serialize their rendered DOM.
type Snapshotter interface {
	HTML(ctx context.Context) (string, error)
}

// Connector opens sessions against a document store.
type Connector interface {
	Connect(ctx context.Context, uri string) (Session, error)
}

// Session inserts documents into named collections.
type Session interface {
	Insert(ctx context.Context, collection string, doc any) error
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes the completion report to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Observer receives per-item outcomes and the final report, typically for metrics.
type Observer interface {
	ObserveItem(status string)
	ObserveRun(report Report)
}

// Item outcome labels passed to Observer.ObserveItem.
const (
	ItemInserted = "inserted"
	ItemFailed   = "failed"
)
