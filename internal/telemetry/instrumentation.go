package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CARDINALITY:
//
// High cardinality attributes (unique values per item) must never be added to
// spans or metrics. That includes video ids, lookup keys, cache ids, titles,
// artists and output paths. Those belong in logs.
//
// Safe attributes have a small fixed set of values:
// - operation names ("query_offline_videos", "load_index", "decrypt")
// - status values ("success", "error")
// - outcomes ("written", "not_found", "incomplete", ...)
// - component names ("database", "cache", "pipeline")

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments metadata store operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentDecrypt instruments the decryption of one cache stream. fn
// returns the number of plaintext bytes produced.
func (t *Telemetry) InstrumentDecrypt(ctx context.Context, fn func(ctx context.Context) (int64, error)) (int64, error) {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveItems(ctx)
	defer t.DecrementActiveItems(ctx)

	var n int64

	err := t.InstrumentOperation(ctx, "decrypt", "cache", func(ctx context.Context) error {
		var err error

		n, err = fn(ctx)

		return err
	})

	t.RecordDecrypt(ctx, statusOf(err), n, time.Since(start))

	return n, err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
