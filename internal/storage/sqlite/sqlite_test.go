package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/italolelis/ytm_dumper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createStore(t *testing.T, name string, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)

	defer db.Close()

	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	return path
}

func TestOpenReadOnly_MissingFile(t *testing.T) {
	_, err := OpenReadOnly(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestOpenReadOnly_RejectsWrites(t *testing.T) {
	path := createStore(t, "offline.db", `CREATE TABLE t (x INTEGER)`)

	db, err := OpenReadOnly(context.Background(), path)
	require.NoError(t, err)

	defer db.Close()

	_, err = db.Exec(`INSERT INTO t (x) VALUES (1)`)
	assert.Error(t, err)
}

func TestOfflineRepository_OfflineVideos(t *testing.T) {
	path := createStore(t, "offline.abc.db",
		`CREATE TABLE videosV2 (id TEXT PRIMARY KEY, offline_video_data_proto BLOB, saved_timestamp INTEGER)`,
		`CREATE TABLE streams (video_id TEXT, format_stream_proto BLOB)`,
		`INSERT INTO videosV2 VALUES ('a', x'01', 1000), ('b', x'02', 3000), ('c', x'03', NULL)`,
		`INSERT INTO streams VALUES ('a', x'0a'), ('b', x'0b'), ('c', x'0c')`,
	)

	db, err := OpenReadOnly(context.Background(), path)
	require.NoError(t, err)

	defer db.Close()

	repo := NewInstrumentedOfflineRepository(NewOfflineRepository(db), nil)

	var ids []string

	for row, err := range repo.OfflineVideos(context.Background(), 0) {
		require.NoError(t, err)

		ids = append(ids, row.VideoID)
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	var since []storage.OfflineVideoRow

	for row, err := range repo.OfflineVideos(context.Background(), 2000) {
		require.NoError(t, err)

		since = append(since, row)
	}

	require.Len(t, since, 1)
	assert.Equal(t, "b", since[0].VideoID)
	assert.Equal(t, int64(3000), since[0].SavedAt)
	assert.Equal(t, []byte{0x0b}, since[0].FormatStream)
}

func TestOfflineRepository_MissingTableYieldsError(t *testing.T) {
	path := createStore(t, "offline.db", `CREATE TABLE unrelated (x INTEGER)`)

	db, err := OpenReadOnly(context.Background(), path)
	require.NoError(t, err)

	defer db.Close()

	var errs int

	for _, err := range NewOfflineRepository(db).OfflineVideos(context.Background(), 0) {
		if err != nil {
			errs++
		}
	}

	assert.Equal(t, 1, errs)
}

func TestEntityRepository_Entities(t *testing.T) {
	path := createStore(t, "x.entitystore",
		`CREATE TABLE entity_table (key TEXT, data_type INTEGER, entity BLOB, last_modified_datetime INTEGER)`,
		`INSERT INTO entity_table VALUES ('k1', 119, x'01', 100), ('k2', 198, x'02', 200), ('k3', 120, x'03', 300), ('k4', 119, x'04', NULL)`,
	)

	db, err := OpenReadOnly(context.Background(), path)
	require.NoError(t, err)

	defer db.Close()

	repo := NewInstrumentedEntityRepository(NewEntityRepository(db), nil)
	types := []int{storage.EntityVideoDetails, storage.EntityCacheElement}

	var keys []string

	for row, err := range repo.Entities(context.Background(), 0, types) {
		require.NoError(t, err)

		keys = append(keys, row.Key)
	}

	assert.ElementsMatch(t, []string{"k1", "k2", "k4"}, keys)

	keys = nil

	for row, err := range repo.Entities(context.Background(), 150, types) {
		require.NoError(t, err)

		keys = append(keys, row.Key)
	}

	assert.Equal(t, []string{"k2"}, keys)
}
