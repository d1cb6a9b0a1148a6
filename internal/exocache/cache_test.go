package exocache_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/italolelis/ytm_dumper/internal/exocache"
	"github.com/italolelis/ytm_dumper/internal/exocache/exocachetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_ResolveAndDecrypt(t *testing.T) {
	dir := t.TempDir()
	plain := bytes.Repeat([]byte("not really an m4a "), 50)

	b := &exocachetest.IndexBuilder{}
	b.Add(4, "aaaaaaaaaaa.140.1", exocachetest.ContentLength(int64(len(plain))))
	b.Add(5, "bbbbbbbbbbb.140.2")
	path := b.WriteFile(t, dir, testKey)

	exocachetest.WriteSpans(t, dir, 4, "aaaaaaaaaaa.140.1", testKey, plain, 100, 517)

	cache, err := exocache.Open(context.Background(), path, "", testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Index().Len())

	entry, err := cache.Resolve([]byte("aaaaaaaaaaa.140.1"))
	require.NoError(t, err)
	require.Len(t, entry.Segments, 3)
	assert.Equal(t, []int64{0, 100, 517}, []int64{entry.Segments[0].Offset, entry.Segments[1].Offset, entry.Segments[2].Offset})

	d, err := exocache.NewDecryptor(testKey)
	require.NoError(t, err)

	var out bytes.Buffer

	n, err := d.Decrypt(context.Background(), entry, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(plain)), n)
	assert.Equal(t, plain, out.Bytes())

	// indexed but never downloaded
	entry, err = cache.Resolve([]byte("bbbbbbbbbbb.140.2"))
	require.NoError(t, err)

	_, err = d.Decrypt(context.Background(), entry, &out)

	var ioErr *exocache.IOError
	assert.True(t, errors.As(err, &ioErr))
}

func TestCache_NotFound(t *testing.T) {
	dir := t.TempDir()

	b := &exocachetest.IndexBuilder{}
	path := b.WriteFile(t, dir, testKey)

	cache, err := exocache.Open(context.Background(), path, "", testKey)
	require.NoError(t, err)

	_, err = cache.Resolve([]byte("missing.140.1"))

	var notFound *exocache.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing.140.1", notFound.Key)
}

func TestCache_SpansApartFromIndex(t *testing.T) {
	indexDir, spanDir := t.TempDir(), t.TempDir()
	plain := bytes.Repeat([]byte("elsewhere "), 40)

	b := &exocachetest.IndexBuilder{}
	b.Add(9, "ccccccccccc.251.3", exocachetest.ContentLength(int64(len(plain))))
	path := b.WriteFile(t, indexDir, testKey)

	exocachetest.WriteSpans(t, spanDir, 9, "ccccccccccc.251.3", testKey, plain, 64)

	next, err := exocache.Open(context.Background(), path, "", testKey)
	require.NoError(t, err)

	entry, err := next.Resolve([]byte("ccccccccccc.251.3"))
	require.NoError(t, err)
	assert.Empty(t, entry.Segments)

	apart, err := exocache.Open(context.Background(), path, spanDir, testKey)
	require.NoError(t, err)

	entry, err = apart.Resolve([]byte("ccccccccccc.251.3"))
	require.NoError(t, err)
	require.Len(t, entry.Segments, 2)
}
