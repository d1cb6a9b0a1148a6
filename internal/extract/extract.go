// Package extract turns metadata records into decrypted media files.
package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/ytm_dumper/internal/cleanup"
	"github.com/italolelis/ytm_dumper/internal/exocache"
	"github.com/italolelis/ytm_dumper/internal/logctx"
	"github.com/italolelis/ytm_dumper/internal/metadata"
	"github.com/italolelis/ytm_dumper/internal/tagger"
	"github.com/italolelis/ytm_dumper/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm    = 0o755
	filePerm   = 0o644
	partSuffix = cleanup.PartialSuffix
	listLayout = "2006-01-02 15:04"
)

// Resolver locates the cache entry of a lookup key.
type Resolver interface {
	Resolve(key []byte) (exocache.Entry, error)
}

// Decrypter writes the plaintext of an entry.
type Decrypter interface {
	Decrypt(ctx context.Context, e exocache.Entry, w io.Writer) (int64, error)
}

// Options configures an Extractor.
type Options struct {
	Dest     string
	ListOnly bool
	Workers  int // defaults to runtime.NumCPU()

	// Resolver and Decrypter may be nil when ListOnly is set.
	Resolver  Resolver
	Decrypter Decrypter

	// Tagger is optional. Tag failures keep the written file.
	Tagger tagger.Tagger

	// ListOutput receives one line per candidate in list mode.
	ListOutput io.Writer

	Telemetry *telemetry.Telemetry
}

// Extractor runs the extraction of a batch of records.
type Extractor struct {
	opts Options
}

func New(opts Options) (*Extractor, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	if opts.Dest == "" {
		opts.Dest = "."
	}

	if !opts.ListOnly && (opts.Resolver == nil || opts.Decrypter == nil) {
		return nil, errors.New("resolver and decrypter are required unless listing")
	}

	if opts.ListOutput == nil {
		opts.ListOutput = os.Stdout
	}

	return &Extractor{opts: opts}, nil
}

// Run drains records, then extracts every candidate. Per item failures are
// reported in the summary. The returned error is set only when the record
// source fails or ctx is canceled.
func (e *Extractor) Run(ctx context.Context, records iter.Seq2[metadata.Record, error]) (Summary, error) {
	logger := logctx.LoggerFromContext(ctx)
	tel := e.opts.Telemetry

	var (
		summary    Summary
		candidates []metadata.Record
	)

	for rec, err := range records {
		if err != nil {
			if !metadata.IsSkippable(err) {
				return summary, fmt.Errorf("failed to read records: %w", err)
			}

			var skipErr *metadata.SkippableRecordError
			if errors.As(err, &skipErr) {
				tel.RecordRecordError(ctx, skipErr.Source)
			}

			logger.Warn("skipping record", "err", err)

			summary.Skipped++

			continue
		}

		candidates = append(candidates, rec)
	}

	items := plan(candidates)
	summary.Candidates = len(items)

	logger.Info("planned extraction", "candidates", len(items), "skipped", summary.Skipped, "list_only", e.opts.ListOnly)

	if e.opts.ListOnly {
		for _, it := range items {
			fmt.Fprintf(e.opts.ListOutput, "%s  %s\n", formatSavedAt(it.rec), it.name)

			tel.RecordItem(ctx, string(OutcomeListed))
			summary.add(Result{Record: it.rec, Outcome: OutcomeListed})
		}

		return summary, nil
	}

	if err := os.MkdirAll(e.opts.Dest, dirPerm); err != nil {
		return summary, fmt.Errorf("failed to create destination directory: %w", err)
	}

	results := make([]Result, len(items))
	scheduled := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, it := range items {
		if ctx.Err() != nil {
			break
		}

		scheduled++

		g.Go(func() error {
			results[i] = e.process(gctx, it)

			return nil
		})
	}

	_ = g.Wait()

	for _, r := range results[:scheduled] {
		summary.add(r)
	}

	for _, it := range items[scheduled:] {
		summary.add(Result{Record: it.rec, Outcome: OutcomeCanceled, Err: ctx.Err()})
	}

	logger.Info("extraction finished",
		"written", summary.Written,
		"existing", summary.Existing,
		"not_found", summary.NotFound,
		"incomplete", summary.Incomplete,
		"failed", summary.Failed,
		"bytes", humanize.Bytes(uint64(summary.Bytes)))

	return summary, ctx.Err()
}

func formatSavedAt(rec metadata.Record) string {
	if rec.SavedAt.IsZero() {
		return "                "
	}

	return rec.SavedAt.Local().Format(listLayout)
}

// process extracts one item. It never panics out of a worker.
func (e *Extractor) process(ctx context.Context, it item) (res Result) {
	logger := logctx.LoggerFromContext(ctx).With(
		"id", it.rec.ID,
		"title", it.rec.Title,
		"lookup_key", string(it.rec.LookupKey),
	)
	ctx = logctx.WithLogger(ctx, logger)

	res = Result{Record: it.rec}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("extraction panic", "panic", r, "stack", string(debug.Stack()))
			e.opts.Telemetry.RecordSystemError(ctx, "extract", "panic")

			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}

		e.opts.Telemetry.RecordItem(ctx, string(res.Outcome))
	}()

	target := filepath.Join(e.opts.Dest, it.name)

	if _, err := os.Lstat(target); err == nil {
		logger.Info("skipping existing file", "path", target)

		res.Outcome = OutcomeExisting
		res.Path = target

		return res
	}

	n, err := e.extract(ctx, it, target)
	res.Outcome = classify(err)
	res.Err = err
	res.Bytes = n

	if err != nil {
		logItemError(logger, res.Outcome, err)

		return res
	}

	res.Path = target

	logger.Info("extracted file", "path", target, "size", humanize.Bytes(uint64(n)))

	if e.opts.Tagger != nil {
		res.TagErr = e.opts.Tagger.Tag(ctx, tagger.Request{
			Path:     target,
			Title:    it.rec.Title,
			Artist:   it.rec.Artist,
			Album:    it.rec.Album,
			CoverURL: it.rec.CoverURL,
		})

		res.Tagged = res.TagErr == nil

		if res.TagErr != nil {
			logger.Warn("failed to tag file", "path", target, "err", res.TagErr)
			e.opts.Telemetry.RecordTag(ctx, "error")
		} else {
			e.opts.Telemetry.RecordTag(ctx, "success")
		}
	}

	return res
}

func logItemError(logger *slog.Logger, outcome Outcome, err error) {
	switch outcome {
	case OutcomeNotFound, OutcomeIncomplete:
		logger.Warn("item not extractable", "outcome", outcome, "err", err)
	case OutcomeCanceled:
		logger.Debug("item canceled", "err", err)
	default:
		logger.Error("failed to extract item", "outcome", outcome, "err", err)
	}
}

// extract decrypts the item into a .part file and moves it into place.
func (e *Extractor) extract(ctx context.Context, it item, target string) (int64, error) {
	entry, err := e.opts.Resolver.Resolve(it.rec.LookupKey)
	if err != nil {
		return 0, err
	}

	part := target + partSuffix

	out, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, &exocache.IOError{Op: "create", Path: part, Err: err}
	}

	fail := func(err error) (int64, error) {
		out.Close()
		os.Remove(part)

		return 0, err
	}

	w := bufio.NewWriterSize(out, 1<<20)

	n, err := e.opts.Telemetry.InstrumentDecrypt(ctx, func(ctx context.Context) (int64, error) {
		return e.opts.Decrypter.Decrypt(ctx, entry, w)
	})
	if err != nil {
		return fail(err)
	}

	if err := w.Flush(); err != nil {
		return fail(&exocache.IOError{Op: "write", Path: part, Err: err})
	}

	if err := out.Close(); err != nil {
		os.Remove(part)

		return 0, &exocache.IOError{Op: "close", Path: part, Err: err}
	}

	if _, err := os.Lstat(target); err == nil {
		os.Remove(part)

		return 0, &exocache.IOError{Op: "rename", Path: target, Err: os.ErrExist}
	}

	if err := os.Rename(part, target); err != nil {
		os.Remove(part)

		return 0, &exocache.IOError{Op: "rename", Path: part, Err: err}
	}

	return n, nil
}
