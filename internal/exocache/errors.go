package exocache

import (
	"fmt"
	"io/fs"
)

// CorruptIndexError means the cache index could not be decoded. It is fatal
// for a run: without the index no item can be located.
type CorruptIndexError struct {
	Path   string // index file, empty when parsed from memory
	Offset int64  // byte offset in the plaintext, or -1 when not applicable
	Reason string // what was wrong
	Err    error  // underlying error, if any
}

func (e *CorruptIndexError) Error() string {
	where := e.Path
	if where == "" {
		where = "cache index"
	}

	if e.Offset >= 0 {
		return fmt.Sprintf("corrupt %s at offset %d: %s", where, e.Offset, e.Reason)
	}

	return fmt.Sprintf("corrupt %s: %s", where, e.Reason)
}

func (e *CorruptIndexError) Unwrap() error {
	return e.Err
}

// NotFoundError means the lookup key has no entry in the index.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cache key %q not found in index", e.Key)
}

// IncompleteDownloadError means the cached spans do not cover the whole
// stream, usually because the download never finished.
type IncompleteDownloadError struct {
	Key      string
	Expected int64 // first missing byte offset
	Got      int64 // offset where the next span actually starts, or the covered length
	Reason   string
}

func (e *IncompleteDownloadError) Error() string {
	return fmt.Sprintf("incomplete download for %q: %s (expected offset %d, got %d)", e.Key, e.Reason, e.Expected, e.Got)
}

// SegmentConsistencyError means two spans claim the same bytes.
type SegmentConsistencyError struct {
	Key    string
	Offset int64 // start of the overlapping span
	End    int64 // end of the previous span
}

func (e *SegmentConsistencyError) Error() string {
	return fmt.Sprintf("overlapping spans for %q: span at %d starts before previous span ends at %d", e.Key, e.Offset, e.End)
}

// IOError wraps a filesystem failure while reading or writing an item.
type IOError struct {
	Op   string // e.g. "open span", "write output"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// noSpansError is the IOError returned for an entry without any span file.
func noSpansError(key string) error {
	return &IOError{Op: "find spans for", Path: key, Err: fs.ErrNotExist}
}
