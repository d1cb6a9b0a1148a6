package exocache

import (
	"context"
	"path/filepath"
)

// Cache resolves lookup keys to entries with their span files attached.
// It is read-only after construction and safe for concurrent use.
type Cache struct {
	index *Index
	spans *Spans
}

// NewCache combines a parsed index with scanned spans.
func NewCache(index *Index, spans *Spans) *Cache {
	return &Cache{index: index, spans: spans}
}

// Open loads the index at indexPath and scans the span files under spanDir.
// An empty spanDir means the directory of the index.
func Open(ctx context.Context, indexPath, spanDir string, key []byte) (*Cache, error) {
	index, err := LoadIndex(ctx, indexPath, key)
	if err != nil {
		return nil, err
	}

	if spanDir == "" {
		spanDir = filepath.Dir(indexPath)
	}

	spans, err := ScanSpans(ctx, spanDir)
	if err != nil {
		return nil, err
	}

	return NewCache(index, spans), nil
}

// Index returns the underlying index.
func (c *Cache) Index() *Index {
	return c.index
}

// Resolve finds the entry for key and attaches its segments ordered by
// offset. It fails with *NotFoundError when the key is not indexed.
func (c *Cache) Resolve(key []byte) (Entry, error) {
	e, ok := c.index.Lookup(key)
	if !ok {
		return Entry{}, &NotFoundError{Key: string(key)}
	}

	e.Segments = c.spans.Segments(e.ID)

	return e, nil
}
