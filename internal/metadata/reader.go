package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"sort"

	"github.com/italolelis/ytm_dumper/internal/logctx"
	"github.com/italolelis/ytm_dumper/internal/protowalk"
	"github.com/italolelis/ytm_dumper/internal/storage"
	"github.com/italolelis/ytm_dumper/internal/storage/sqlite"
	"github.com/italolelis/ytm_dumper/internal/telemetry"
)

// Store file name patterns inside a databases directory.
const (
	OfflineStorePattern = "offline*.db"
	EntityStorePattern  = "*.entitystore"
)

// Stores lists the store files found in a databases directory.
type Stores struct {
	Offline []string
	Entity  []string
}

// Discover finds every known store in dir.
func Discover(dir string) (Stores, error) {
	var stores Stores

	var err error

	stores.Offline, err = filepath.Glob(filepath.Join(dir, OfflineStorePattern))
	if err != nil {
		return Stores{}, err
	}

	stores.Entity, err = filepath.Glob(filepath.Join(dir, EntityStorePattern))
	if err != nil {
		return Stores{}, err
	}

	sort.Strings(stores.Offline)
	sort.Strings(stores.Entity)

	if len(stores.Offline) == 0 && len(stores.Entity) == 0 {
		return Stores{}, fmt.Errorf("%s: %w", dir, ErrNoStores)
	}

	return stores, nil
}

type offlineSource struct {
	name string
	repo storage.OfflineRepository
}

type entitySource struct {
	name string
	repo storage.EntityRepository
}

// Reader produces records from one or more stores.
type Reader struct {
	offline  []offlineSource
	entities []entitySource
	composer KeyComposer
	closers  []io.Closer
}

// Option configures a Reader.
type Option func(*Reader)

// WithKeyComposer replaces the default ExoKeyV1 composer.
func WithKeyComposer(c KeyComposer) Option {
	return func(r *Reader) {
		r.composer = c
	}
}

// WithOfflineStore adds an offline store.
func WithOfflineStore(name string, repo storage.OfflineRepository) Option {
	return func(r *Reader) {
		r.offline = append(r.offline, offlineSource{name: name, repo: repo})
	}
}

// WithEntityStore adds an entity store.
func WithEntityStore(name string, repo storage.EntityRepository) Option {
	return func(r *Reader) {
		r.entities = append(r.entities, entitySource{name: name, repo: repo})
	}
}

func NewReader(opts ...Option) *Reader {
	r := &Reader{composer: ExoKeyV1{}}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Open discovers the stores in dir and opens them read-only.
func Open(ctx context.Context, dir string, tel *telemetry.Telemetry, opts ...Option) (*Reader, error) {
	logger := logctx.LoggerFromContext(ctx)

	stores, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	r := NewReader(opts...)

	for _, path := range stores.Offline {
		db, err := sqlite.OpenReadOnly(ctx, path)
		if err != nil {
			r.Close()

			return nil, err
		}

		logger.Info("opened offline store", "path", path)

		r.closers = append(r.closers, db)
		r.offline = append(r.offline, offlineSource{
			name: filepath.Base(path),
			repo: sqlite.NewInstrumentedOfflineRepository(sqlite.NewOfflineRepository(db), tel),
		})
	}

	for _, path := range stores.Entity {
		db, err := sqlite.OpenReadOnly(ctx, path)
		if err != nil {
			r.Close()

			return nil, err
		}

		logger.Info("opened entity store", "path", path)

		r.closers = append(r.closers, db)
		r.entities = append(r.entities, entitySource{
			name: filepath.Base(path),
			repo: sqlite.NewInstrumentedEntityRepository(sqlite.NewEntityRepository(db), tel),
		})
	}

	return r, nil
}

// Close releases the stores opened by Open.
func (r *Reader) Close() error {
	var errs []error

	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}

	r.closers = nil

	return errors.Join(errs...)
}

// Records yields every record allowed by f. Rows that cannot be decoded are
// yielded as *SkippableRecordError and reading continues. Any other error is
// a store failure and ends the sequence.
//
// Entity store rows are joined by video id before offline rows are streamed.
// Records with the same video id in both stores share display fields. A
// lookup key is produced at most once among the records allowed by f.
func (r *Reader) Records(ctx context.Context, f Filter) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		since := f.sinceMillis()
		seen := make(map[string]struct{})

		emit := func(rec Record) bool {
			key, err := r.composer.Compose(rec)
			if err != nil {
				return yield(Record{}, &SkippableRecordError{
					Source: rec.Source, Row: rec.ID, Reason: "cannot derive lookup key", Err: err,
				})
			}

			if _, dup := seen[string(key)]; dup {
				return true
			}

			rec.LookupKey = key

			if !f.Allows(rec) {
				return true
			}

			seen[string(key)] = struct{}{}

			return yield(rec, nil)
		}

		entities, order, ok := r.loadEntities(ctx, since, yield)
		if !ok {
			return
		}

		displays := make(map[string]display)

		for _, src := range r.offline {
			for row, err := range src.repo.OfflineVideos(ctx, since) {
				if err != nil {
					yield(Record{}, fmt.Errorf("read %s: %w", src.name, err))

					return
				}

				rec, err := decodeOfflineRow(src.name, row)
				if err != nil {
					if !yield(Record{}, err) {
						return
					}

					continue
				}

				if p, ok := entities[rec.ID]; ok {
					rec.fillFrom(p.display())
				}

				if _, ok := displays[rec.ID]; !ok {
					displays[rec.ID] = rec.display()
				}

				if !emit(rec) {
					return
				}
			}
		}

		for _, ref := range order {
			p := entities[ref.id]
			if !p.hasStream {
				continue
			}

			rec := p.record(ref.source)
			if d, ok := displays[rec.ID]; ok {
				rec.fillFrom(d)
			}

			if !emit(rec) {
				return
			}
		}
	}
}

type entityRef struct {
	id     string
	source string
}

// loadEntities joins entity rows by video id. ok is false when iteration must
// stop, either because the consumer stopped or a store failed.
func (r *Reader) loadEntities(ctx context.Context, since int64, yield func(Record, error) bool) (map[string]*entityParts, []entityRef, bool) {
	logger := logctx.LoggerFromContext(ctx)

	parts := make(map[string]*entityParts)

	var order []entityRef

	types := []int{storage.EntityVideoDetails, storage.EntityMusicTrack, storage.EntityCacheElement}

	for _, src := range r.entities {
		for row, err := range src.repo.Entities(ctx, since, types) {
			if err != nil {
				yield(Record{}, fmt.Errorf("read %s: %w", src.name, err))

				return nil, nil, false
			}

			skip := func(rowID, reason string, err error) bool {
				return yield(Record{}, &SkippableRecordError{Source: src.name, Row: rowID, Reason: reason, Err: err})
			}

			id, err := decodeEntityKey(row.Key)
			if err != nil && row.DataType == storage.EntityMusicTrack {
				logger.Debug("ignoring track entity", "key", row.Key, "err", err)

				continue
			}

			if err != nil {
				if !skip(row.Key, "undecodable entity key", err) {
					return nil, nil, false
				}

				continue
			}

			msg, err := protowalk.Decode(row.Entity)
			if err != nil && row.DataType == storage.EntityMusicTrack {
				logger.Debug("ignoring track entity", "video_id", id, "err", err)

				continue
			}

			if err != nil {
				if !skip(id, "undecodable entity", err) {
					return nil, nil, false
				}

				continue
			}

			p, ok := parts[id]
			if !ok {
				p = &entityParts{id: id}
				parts[id] = p
				order = append(order, entityRef{id: id, source: src.name})
			}

			switch row.DataType {
			case storage.EntityVideoDetails:
				err = p.addDetails(msg, row.LastModified)
			case storage.EntityCacheElement:
				err = p.addCacheElement(msg)
			case storage.EntityMusicTrack:
				p.addTrack(msg)
			}

			if err != nil {
				if !skip(id, "incomplete entity", err) {
					return nil, nil, false
				}
			}
		}
	}

	for _, ref := range order {
		p := parts[ref.id]
		if p.hasStream && !p.details {
			p.hasStream = false

			if !yield(Record{}, &SkippableRecordError{Source: ref.source, Row: p.id, Reason: "cache element without video details"}) {
				return nil, nil, false
			}
		}
	}

	logger.Debug("loaded entity store", "videos", len(order))

	return parts, order, true
}
