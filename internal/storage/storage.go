package storage

import (
	"context"
	"iter"
)

// Entity store data types holding the fields needed to rebuild a record.
const (
	EntityVideoDetails = 119
	EntityMusicTrack   = 169 // album
	EntityCacheElement = 198
)

// OfflineVideoRow is one row of the offline store's video/stream join.
type OfflineVideoRow struct {
	VideoID      string
	VideoData    []byte // offline_video_data_proto
	FormatStream []byte // format_stream_proto
	SavedAt      int64  // milliseconds since epoch, 0 when unknown
}

// EntityRow is one row of the entity store.
type EntityRow struct {
	Key          string // URL-escaped base64 of the entity key message
	DataType     int
	Entity       []byte
	LastModified int64 // milliseconds since epoch, 0 when unknown
}

// OfflineRepository reads the offline store (offline*.db).
type OfflineRepository interface {
	OfflineVideos(ctx context.Context, sinceMillis int64) iter.Seq2[OfflineVideoRow, error]
}

// EntityRepository reads the entity store (*.entitystore).
type EntityRepository interface {
	Entities(ctx context.Context, sinceMillis int64, dataTypes []int) iter.Seq2[EntityRow, error]
}
