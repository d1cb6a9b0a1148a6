package exocache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpanName(t *testing.T) {
	tests := []struct {
		name    string
		ok      bool
		id      int32
		offset  int64
		touched int64
	}{
		{name: "12.0.1700000000000.v3.exo", ok: true, id: 12, offset: 0, touched: 1700000000000},
		{name: "3.2097152.5.v3.exo", ok: true, id: 3, offset: 2097152, touched: 5},
		{name: "cached_content_index.exi", ok: false},
		{name: "12.0.1.v2.exo", ok: false},
		{name: "12.0.v3.exo", ok: false},
		{name: "x.0.1.v3.exo", ok: false},
		{name: "99999999999.0.1.v3.exo", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, offset, touched, ok := ParseSpanName(tt.name)
			require.Equal(t, tt.ok, ok)

			if ok {
				assert.Equal(t, tt.id, id)
				assert.Equal(t, tt.offset, offset)
				assert.Equal(t, tt.touched, touched)
			}
		})
	}
}

func TestScanSpans(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "1")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	write := func(dir, name string, size int) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o600))
	}

	write(dir, "5.100.1.v3.exo", 50)
	write(sub, "5.0.1.v3.exo", 100)
	write(dir, "5.100.9.v3.exo", 60) // newer copy of the same span
	write(dir, "6.0.1.v3.exo", 10)
	write(dir, "cached_content_index.exi", 10)
	write(dir, "notes.txt", 1)

	spans, err := ScanSpans(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, spans.Len())

	segs := spans.Segments(5)
	require.Len(t, segs, 2)
	assert.Equal(t, int64(0), segs[0].Offset)
	assert.Equal(t, int64(100), segs[0].Length)
	assert.Equal(t, filepath.Join(sub, "5.0.1.v3.exo"), segs[0].Path)
	assert.Equal(t, int64(100), segs[1].Offset)
	assert.Equal(t, int64(60), segs[1].Length)
	assert.Equal(t, int64(9), segs[1].Touched)

	assert.Empty(t, spans.Segments(42))
}

func TestScanSpans_MissingDir(t *testing.T) {
	_, err := ScanSpans(context.Background(), filepath.Join(t.TempDir(), "missing"))

	var ioErr *IOError
	assert.ErrorAs(t, err, &ioErr)
}
