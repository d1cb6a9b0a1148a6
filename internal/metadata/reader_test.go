package metadata_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/italolelis/ytm_dumper/internal/metadata"
	"github.com/italolelis/ytm_dumper/internal/metadata/metadatatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	songA = metadatatest.Video{
		ID: "aaaaaaaaaaa", Title: "First Song", Artist: "Band", Itag: 140, LastModified: 1600000000000001,
		MimeType: "audio/mp4", SavedAt: 1700000000000,
		Thumbnails: []metadatatest.Thumbnail{{URL: "https://img/small", Height: 60}, {URL: "https://img/large", Height: 544}},
	}
	songB = metadatatest.Video{
		ID: "bbbbbbbbbbb", Title: "Second Song", Artist: "Band", Itag: 251, LastModified: 1600000000000002,
		MimeType: "audio/webm", SavedAt: 1700000100000,
	}
	songC = metadatatest.Video{
		ID: "ccccccccccc", Title: "Third Song", Artist: "Other", Itag: 140, LastModified: 1600000000000003,
		MimeType: "audio/mp4", SavedAt: 1700000200000,
	}
)

type collected struct {
	records []metadata.Record
	skipped []error
}

func collect(t *testing.T, r *metadata.Reader, f metadata.Filter) collected {
	t.Helper()

	var c collected

	for rec, err := range r.Records(context.Background(), f) {
		if err != nil {
			require.True(t, metadata.IsSkippable(err), "unexpected fatal error: %v", err)

			c.skipped = append(c.skipped, err)

			continue
		}

		c.records = append(c.records, rec)
	}

	return c
}

func byID(records []metadata.Record) map[string]metadata.Record {
	m := make(map[string]metadata.Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}

	return m
}

func openDir(t *testing.T, dir string) *metadata.Reader {
	t.Helper()

	r, err := metadata.Open(context.Background(), dir, nil)
	require.NoError(t, err)

	t.Cleanup(func() { r.Close() })

	return r
}

func TestOpen_NoStores(t *testing.T) {
	_, err := metadata.Open(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, metadata.ErrNoStores)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteOfflineStore(t, dir, songA)
	metadatatest.WriteEntityStore(t, dir, songB)

	stores, err := metadata.Discover(dir)
	require.NoError(t, err)
	assert.Len(t, stores.Offline, 1)
	assert.Len(t, stores.Entity, 1)
}

func TestReader_OfflineStore(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteOfflineStore(t, dir, songA, songB)

	got := collect(t, openDir(t, dir), metadata.Filter{})
	require.Empty(t, got.skipped)
	require.Len(t, got.records, 2)

	a := byID(got.records)[songA.ID]
	assert.Equal(t, "First Song", a.Title)
	assert.Equal(t, "Band", a.Artist)
	assert.Equal(t, uint64(140), a.Itag)
	assert.Equal(t, "audio/mp4", a.MimeType)
	assert.Equal(t, "https://img/large", a.CoverURL)
	assert.Equal(t, time.UnixMilli(songA.SavedAt), a.SavedAt)
	assert.Equal(t, songA.LookupKey(), string(a.LookupKey))
	assert.Equal(t, "offline.test.db", a.Source)
}

func TestReader_EntityStore(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteEntityStore(t, dir, songB)

	got := collect(t, openDir(t, dir), metadata.Filter{})
	require.Empty(t, got.skipped)
	require.Len(t, got.records, 1)

	b := got.records[0]
	assert.Equal(t, songB.ID, b.ID)
	assert.Equal(t, "Second Song", b.Title)
	assert.Equal(t, "audio/webm", b.MimeType)
	assert.Equal(t, songB.LookupKey(), string(b.LookupKey))
}

func TestReader_JoinsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()

	offline := metadatatest.WriteOfflineStore(t, dir, songA)
	entity := metadatatest.WriteEntityStore(t, dir, songA, songC)

	untitled := metadatatest.Video{
		ID: "ddddddddddd", Title: "Named By Entity", Artist: "Entity Artist", Itag: 140,
		LastModified: 42, MimeType: "audio/mp4", SavedAt: 1700000300000,
	}
	metadatatest.InsertRawOffline(t, offline, untitled.ID, nil, metadatatest.FormatStream(untitled), untitled.SavedAt)
	metadatatest.InsertRawEntity(t, entity, metadatatest.EntityKey(untitled.ID, 119),
		119, metadatatest.VideoDetailsEntity(untitled), untitled.SavedAt)

	got := collect(t, openDir(t, dir), metadata.Filter{})
	require.Empty(t, got.skipped)

	keys := make(map[string]int)
	for _, r := range got.records {
		keys[string(r.LookupKey)]++
	}

	assert.Len(t, got.records, 3)

	for key, n := range keys {
		assert.Equal(t, 1, n, "key %s produced more than once", key)
	}

	recs := byID(got.records)
	assert.Equal(t, "Named By Entity", recs[untitled.ID].Title)
	assert.Equal(t, "Entity Artist", recs[untitled.ID].Artist)
	assert.Equal(t, "Third Song", recs[songC.ID].Title)
	assert.Equal(t, "offline.test.db", recs[songA.ID].Source)
}

func TestReader_SkipsBadRows(t *testing.T) {
	dir := t.TempDir()

	offline := metadatatest.WriteOfflineStore(t, dir, songA)
	metadatatest.InsertRawOffline(t, offline, "broken", nil, []byte{0xff}, 1)
	metadatatest.InsertRawOffline(t, offline, "noitag", nil, []byte{0x2a, 0x00}, 1)

	entity := metadatatest.WriteEntityStore(t, dir, songB)
	metadatatest.InsertRawEntity(t, entity, "%%%", 119, nil, 1)
	metadatatest.InsertRawEntity(t, entity, metadatatest.EntityKey(songC.ID, 198),
		198, metadatatest.CacheElementEntity(songC), songC.SavedAt)

	got := collect(t, openDir(t, dir), metadata.Filter{})

	assert.Len(t, got.records, 2)
	assert.Len(t, got.skipped, 4)

	var skipErr *metadata.SkippableRecordError
	require.True(t, errors.As(got.skipped[0], &skipErr))
	assert.NotEmpty(t, skipErr.Source)
}

func TestReader_Filter(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteOfflineStore(t, dir, songA, songB)
	metadatatest.WriteEntityStore(t, dir, songC)

	r := openDir(t, dir)

	since := collect(t, r, metadata.Filter{Since: time.UnixMilli(songB.SavedAt)})
	assert.ElementsMatch(t, []string{songB.ID, songC.ID}, ids(since.records))

	match := collect(t, r, metadata.Filter{Match: regexp.MustCompile(`(?i)^band - `)})
	assert.ElementsMatch(t, []string{songA.ID, songB.ID}, ids(match.records))

	both := collect(t, r, metadata.Filter{
		Since: time.UnixMilli(songB.SavedAt),
		Match: regexp.MustCompile(`(?i)^band - `),
	})
	assert.Equal(t, []string{songB.ID}, ids(both.records))
}

func TestReader_StopsWhenConsumerStops(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteOfflineStore(t, dir, songA, songB, songC)

	r := openDir(t, dir)

	n := 0
	for range r.Records(context.Background(), metadata.Filter{}) {
		n++

		break
	}

	assert.Equal(t, 1, n)
}

func TestReader_CustomKeyComposer(t *testing.T) {
	dir := t.TempDir()
	metadatatest.WriteOfflineStore(t, dir, songA)

	composer := metadata.KeyComposerFunc(func(r metadata.Record) ([]byte, error) {
		return []byte("custom:" + r.ID), nil
	})

	r, err := metadata.Open(context.Background(), dir, nil, metadata.WithKeyComposer(composer))
	require.NoError(t, err)

	defer r.Close()

	got := collect(t, r, metadata.Filter{})
	require.Len(t, got.records, 1)
	assert.Equal(t, "custom:"+songA.ID, string(got.records[0].LookupKey))
}

func ids(records []metadata.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}

	return out
}

func TestReader_AlbumFromTrackEntity(t *testing.T) {
	dir := t.TempDir()

	metadatatest.WriteOfflineStore(t, dir, songA)

	withAlbum := songB
	withAlbum.Album = "Second Record"
	entity := metadatatest.WriteEntityStore(t, dir, withAlbum)

	trackA := songA
	trackA.Album = "First Record"
	metadatatest.InsertRawEntity(t, entity, metadatatest.EntityKey(songA.ID, 169),
		169, metadatatest.MusicTrackEntity(trackA), songA.SavedAt)
	metadatatest.InsertRawEntity(t, entity, "%%%", 169, []byte{0xff}, 1)

	got := collect(t, openDir(t, dir), metadata.Filter{})
	require.Empty(t, got.skipped)
	require.Len(t, got.records, 2)

	recs := byID(got.records)
	assert.Equal(t, "Second Record", recs[songB.ID].Album)
	assert.Equal(t, "First Record", recs[songA.ID].Album)
	assert.Equal(t, "offline.test.db", recs[songA.ID].Source)
}

func TestReader_DuplicateKeyFilteredPerCopy(t *testing.T) {
	dir := t.TempDir()

	metadatatest.WriteOfflineStore(t, dir, songA)

	renamed := songA
	renamed.Title = "Entity Title"
	metadatatest.WriteEntityStore(t, dir, renamed)

	r := openDir(t, dir)

	got := collect(t, r, metadata.Filter{Match: regexp.MustCompile(`Entity Title`)})
	require.Len(t, got.records, 1)
	assert.Equal(t, "Entity Title", got.records[0].Title)
	assert.Equal(t, songA.LookupKey(), string(got.records[0].LookupKey))

	all := collect(t, r, metadata.Filter{})
	assert.Len(t, all.records, 1)
}
