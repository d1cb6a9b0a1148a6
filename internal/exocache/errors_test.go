package exocache

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

// TestCorruptIndexError_Error verifies error message formatting
func TestCorruptIndexError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CorruptIndexError
		want string
	}{
		{
			name: "with path and offset",
			err:  &CorruptIndexError{Path: "cached_content_index.exi", Offset: 12, Reason: "key length overruns data"},
			want: "corrupt cached_content_index.exi at offset 12: key length overruns data",
		},
		{
			name: "from memory without offset",
			err:  &CorruptIndexError{Offset: -1, Reason: "unsupported version 3"},
			want: "corrupt cache index: unsupported version 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestErrorMessages verifies the remaining error formats
func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "not found",
			err:  &NotFoundError{Key: "abc.140.1"},
			want: `cache key "abc.140.1" not found in index`,
		},
		{
			name: "incomplete",
			err:  &IncompleteDownloadError{Key: "abc.140.1", Expected: 100, Got: 150, Reason: "gap between spans"},
			want: `incomplete download for "abc.140.1": gap between spans (expected offset 100, got 150)`,
		},
		{
			name: "overlap",
			err:  &SegmentConsistencyError{Key: "abc.140.1", Offset: 90, End: 100},
			want: `overlapping spans for "abc.140.1": span at 90 starts before previous span ends at 100`,
		},
		{
			name: "io with path",
			err:  &IOError{Op: "open span", Path: "/x/1.0.1.v3.exo", Err: fs.ErrPermission},
			want: "open span /x/1.0.1.v3.exo: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestErrorUnwrapping verifies errors.Is and errors.As see through wrapping
func TestErrorUnwrapping(t *testing.T) {
	base := errors.New("cipher: bad padding")

	wrapped := fmt.Errorf("load index: %w", &CorruptIndexError{Offset: -1, Reason: "bad padding", Err: base})

	var corrupt *CorruptIndexError
	if !errors.As(wrapped, &corrupt) {
		t.Fatal("errors.As failed to find CorruptIndexError")
	}

	if !errors.Is(wrapped, base) {
		t.Error("errors.Is failed to find the underlying error")
	}

	if err := noSpansError("abc.140.1"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("noSpansError should wrap fs.ErrNotExist, got %v", err)
	}
}
