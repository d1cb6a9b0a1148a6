package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/italolelis/ytm_dumper/internal/storage"
)

const offlineVideosQuery = `
	SELECT v.id, v.offline_video_data_proto, s.format_stream_proto, v.saved_timestamp
	FROM videosV2 v
	JOIN streams s ON v.id = s.video_id`

// OfflineRepository reads downloaded videos from an offline*.db store.
type OfflineRepository struct {
	db *sql.DB
}

func NewOfflineRepository(db *sql.DB) *OfflineRepository {
	return &OfflineRepository{db: db}
}

// OfflineVideos yields every downloaded video joined with its stream rows.
// A query or scan failure is yielded once and ends the sequence.
func (r *OfflineRepository) OfflineVideos(ctx context.Context, sinceMillis int64) iter.Seq2[storage.OfflineVideoRow, error] {
	return func(yield func(storage.OfflineVideoRow, error) bool) {
		query := offlineVideosQuery

		var args []any
		if sinceMillis > 0 {
			query += ` WHERE v.saved_timestamp >= ?`

			args = append(args, sinceMillis)
		}

		query += ` ORDER BY v.saved_timestamp, v.id`

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(storage.OfflineVideoRow{}, fmt.Errorf("failed to query offline videos: %w", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				row     storage.OfflineVideoRow
				savedAt sql.NullInt64
			)

			if err := rows.Scan(&row.VideoID, &row.VideoData, &row.FormatStream, &savedAt); err != nil {
				yield(storage.OfflineVideoRow{}, fmt.Errorf("failed to scan offline video: %w", err))

				return
			}

			if savedAt.Valid {
				row.SavedAt = savedAt.Int64
			}

			if !yield(row, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(storage.OfflineVideoRow{}, fmt.Errorf("failed to read offline videos: %w", err))
		}
	}
}
