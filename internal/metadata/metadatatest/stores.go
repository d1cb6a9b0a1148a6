// Package metadatatest builds synthetic metadata stores for tests.
package metadatatest

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
	"google.golang.org/protobuf/encoding/protowire"
)

// Video describes one downloaded item to place in a synthetic store.
type Video struct {
	ID           string
	Title        string
	Artist       string
	Album        string // written as a music track entity when set
	Itag         uint64
	LastModified uint64
	MimeType     string
	SavedAt      int64 // milliseconds
	Thumbnails   []Thumbnail
}

// Thumbnail is a cover art candidate.
type Thumbnail struct {
	URL    string
	Height uint64
}

// LookupKey is the key the cache writer uses for v.
func (v Video) LookupKey() string {
	return fmt.Sprintf("%s.%d.%d", v.ID, v.Itag, v.LastModified)
}

func appendString(b []byte, n protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)

	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, n protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, n, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, n protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)

	return protowire.AppendBytes(b, sub)
}

// FormatStream encodes the format stream message of v.
func FormatStream(v Video) []byte {
	var b []byte
	b = appendVarint(b, 1, v.Itag)
	b = appendString(b, 5, v.MimeType)
	b = appendVarint(b, 11, v.LastModified)
	// unknown field, must be ignored by readers
	b = appendVarint(b, 4242, 1)

	return b
}

func thumbnails(v Video) []byte {
	var b []byte

	for _, th := range v.Thumbnails {
		var t []byte
		t = appendString(t, 1, th.URL)
		t = appendVarint(t, 2, th.Height)
		t = appendVarint(t, 3, th.Height)
		b = appendMessage(b, 1, t)
	}

	return b
}

// OfflineVideoData encodes the offline_video_data_proto of v.
func OfflineVideoData(v Video) []byte {
	var meta []byte
	meta = appendString(meta, 1, v.Title)
	meta = appendString(meta, 3, v.Artist)

	var b []byte
	b = appendMessage(b, 2, thumbnails(v))
	b = appendMessage(b, 14, appendMessage(nil, 112520939, meta))

	return b
}

// VideoDetailsEntity encodes the entity store video details of v.
func VideoDetailsEntity(v Video) []byte {
	var details []byte
	details = appendString(details, 15, v.Title)
	details = appendString(details, 33, v.Artist)
	details = appendMessage(details, 25, thumbnails(v))

	return appendMessage(nil, 2, appendMessage(nil, 11, details))
}

// MusicTrackEntity encodes the entity store music track of v, which carries
// the album name.
func MusicTrackEntity(v Video) []byte {
	info := appendString(nil, 22, v.Album)

	return appendMessage(nil, 2, appendMessage(nil, 3, appendMessage(nil, 356057097, appendMessage(nil, 3, info))))
}

// CacheElementEntity encodes the entity store cache element of v.
func CacheElementEntity(v Video) []byte {
	return appendMessage(nil, 2, appendMessage(nil, 5, FormatStream(v)))
}

// EntityKey encodes an entity key the way the app stores it.
func EntityKey(id string, kind uint64) string {
	var b []byte
	b = appendVarint(b, 1, kind)
	b = appendString(b, 2, id)

	return url.QueryEscape(base64.StdEncoding.EncodeToString(b))
}

func create(t *testing.T, path string, stmts ...string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	return db
}

// WriteOfflineStore writes an offline.<name>.db store into dir.
func WriteOfflineStore(t *testing.T, dir string, videos ...Video) string {
	t.Helper()

	path := filepath.Join(dir, "offline.test.db")
	db := create(t, path,
		`CREATE TABLE videosV2 (id TEXT PRIMARY KEY, offline_video_data_proto BLOB, saved_timestamp INTEGER)`,
		`CREATE TABLE streams (video_id TEXT, format_stream_proto BLOB)`,
	)
	defer db.Close()

	for _, v := range videos {
		if _, err := db.Exec(`INSERT INTO videosV2 VALUES (?, ?, ?)`, v.ID, OfflineVideoData(v), v.SavedAt); err != nil {
			t.Fatalf("insert video %s: %v", v.ID, err)
		}

		if _, err := db.Exec(`INSERT INTO streams VALUES (?, ?)`, v.ID, FormatStream(v)); err != nil {
			t.Fatalf("insert stream %s: %v", v.ID, err)
		}
	}

	return path
}

// InsertRawOffline adds an offline row with arbitrary blobs.
func InsertRawOffline(t *testing.T, path, id string, videoData, stream []byte, savedAt int64) {
	t.Helper()

	db := create(t, path)
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO videosV2 VALUES (?, ?, ?)`, id, videoData, savedAt); err != nil {
		t.Fatalf("insert video %s: %v", id, err)
	}

	if _, err := db.Exec(`INSERT INTO streams VALUES (?, ?)`, id, stream); err != nil {
		t.Fatalf("insert stream %s: %v", id, err)
	}
}

// WriteEntityStore writes a test.entitystore store into dir.
func WriteEntityStore(t *testing.T, dir string, videos ...Video) string {
	t.Helper()

	path := filepath.Join(dir, "test.entitystore")
	db := create(t, path,
		`CREATE TABLE entity_table (key TEXT PRIMARY KEY, data_type INTEGER, entity BLOB, last_modified_datetime INTEGER)`,
	)
	defer db.Close()

	for _, v := range videos {
		if _, err := db.Exec(`INSERT INTO entity_table VALUES (?, 119, ?, ?)`, EntityKey(v.ID, 119), VideoDetailsEntity(v), v.SavedAt); err != nil {
			t.Fatalf("insert details %s: %v", v.ID, err)
		}

		if _, err := db.Exec(`INSERT INTO entity_table VALUES (?, 198, ?, ?)`, EntityKey(v.ID, 198), CacheElementEntity(v), v.SavedAt); err != nil {
			t.Fatalf("insert cache element %s: %v", v.ID, err)
		}

		if v.Album == "" {
			continue
		}

		if _, err := db.Exec(`INSERT INTO entity_table VALUES (?, 169, ?, ?)`, EntityKey(v.ID, 169), MusicTrackEntity(v), v.SavedAt); err != nil {
			t.Fatalf("insert music track %s: %v", v.ID, err)
		}
	}

	return path
}

// InsertRawEntity adds an entity row with an arbitrary key and blob.
func InsertRawEntity(t *testing.T, path, key string, dataType int, entity []byte, lastModified int64) {
	t.Helper()

	db := create(t, path)
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO entity_table VALUES (?, ?, ?, ?)`, key, dataType, entity, lastModified); err != nil {
		t.Fatalf("insert entity %s: %v", key, err)
	}
}
