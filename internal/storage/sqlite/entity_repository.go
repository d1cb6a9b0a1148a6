package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	"github.com/italolelis/ytm_dumper/internal/storage"
)

// EntityRepository reads entities from a *.entitystore store.
type EntityRepository struct {
	db *sql.DB
}

func NewEntityRepository(db *sql.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Entities yields entity rows of the given data types. A query or scan
// failure is yielded once and ends the sequence.
func (r *EntityRepository) Entities(ctx context.Context, sinceMillis int64, dataTypes []int) iter.Seq2[storage.EntityRow, error] {
	return func(yield func(storage.EntityRow, error) bool) {
		var (
			conds []string
			args  []any
		)

		if len(dataTypes) > 0 {
			conds = append(conds, `data_type IN (?`+strings.Repeat(`, ?`, len(dataTypes)-1)+`)`)

			for _, dt := range dataTypes {
				args = append(args, dt)
			}
		}

		if sinceMillis > 0 {
			conds = append(conds, `last_modified_datetime >= ?`)
			args = append(args, sinceMillis)
		}

		query := `SELECT key, data_type, entity, last_modified_datetime FROM entity_table`
		if len(conds) > 0 {
			query += ` WHERE ` + strings.Join(conds, ` AND `)
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(storage.EntityRow{}, fmt.Errorf("failed to query entities: %w", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				row          storage.EntityRow
				lastModified sql.NullInt64
			)

			if err := rows.Scan(&row.Key, &row.DataType, &row.Entity, &lastModified); err != nil {
				yield(storage.EntityRow{}, fmt.Errorf("failed to scan entity: %w", err))

				return
			}

			if lastModified.Valid {
				row.LastModified = lastModified.Int64
			}

			if !yield(row, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(storage.EntityRow{}, fmt.Errorf("failed to read entities: %w", err))
		}
	}
}
