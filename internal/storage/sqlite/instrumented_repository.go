package sqlite

import (
	"context"
	"iter"
	"time"

	"github.com/italolelis/ytm_dumper/internal/storage"
	"github.com/italolelis/ytm_dumper/internal/telemetry"
)

// InstrumentedOfflineRepository wraps an OfflineRepository with telemetry.
type InstrumentedOfflineRepository struct {
	repo      storage.OfflineRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedOfflineRepository creates a new instrumented offline repository.
func NewInstrumentedOfflineRepository(repo storage.OfflineRepository, tel *telemetry.Telemetry) *InstrumentedOfflineRepository {
	return &InstrumentedOfflineRepository{repo: repo, telemetry: tel}
}

// OfflineVideos reads offline videos, recording one operation for the whole
// scan.
func (r *InstrumentedOfflineRepository) OfflineVideos(ctx context.Context, sinceMillis int64) iter.Seq2[storage.OfflineVideoRow, error] {
	return instrumentSeq(ctx, r.telemetry, "query_offline_videos", r.repo.OfflineVideos(ctx, sinceMillis))
}

// InstrumentedEntityRepository wraps an EntityRepository with telemetry.
type InstrumentedEntityRepository struct {
	repo      storage.EntityRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedEntityRepository creates a new instrumented entity repository.
func NewInstrumentedEntityRepository(repo storage.EntityRepository, tel *telemetry.Telemetry) *InstrumentedEntityRepository {
	return &InstrumentedEntityRepository{repo: repo, telemetry: tel}
}

// Entities reads entities, recording one operation for the whole scan.
func (r *InstrumentedEntityRepository) Entities(ctx context.Context, sinceMillis int64, dataTypes []int) iter.Seq2[storage.EntityRow, error] {
	return instrumentSeq(ctx, r.telemetry, "query_entities", r.repo.Entities(ctx, sinceMillis, dataTypes))
}

func instrumentSeq[T any](ctx context.Context, tel *telemetry.Telemetry, operation string, seq iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		start := time.Now()
		status := "success"

		defer func() {
			tel.RecordDBOperation(ctx, operation, status, time.Since(start))
		}()

		for row, err := range seq {
			if err != nil {
				status = "error"
			}

			if !yield(row, err) {
				return
			}
		}
	}
}
