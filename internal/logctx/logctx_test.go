package logctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(nil, nil))
	assert.Same(t, logger, LoggerFromContext(WithLogger(context.Background(), logger)))
}

func TestRunID(t *testing.T) {
	assert.Empty(t, RunIDFromContext(context.Background()))

	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, RunIDFromContext(WithRunID(context.Background(), a)))
}
