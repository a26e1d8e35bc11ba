// Package scrape loads a search-results page through a Browser, extracts one
// ProductRecord per result node, and inserts each record into a document store.
package scrape
