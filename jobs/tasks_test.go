package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurger struct {
	before time.Time
	purged int64
	err    error
}

func (s *stubPurger) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	s.before = before
	return s.purged, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSessionPurgeHandler(t *testing.T) {
	purger := &stubPurger{purged: 3}
	handler := NewSessionPurgeHandler(purger, discardLogger(), nil)

	cutoff := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	task, err := NewSessionPurgeTask(SessionPurgePayload{Before: cutoff})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	assert.True(t, purger.before.Equal(cutoff))
}

func TestSessionPurgeHandlerDefaultsCutoff(t *testing.T) {
	purger := &stubPurger{}
	handler := NewSessionPurgeHandler(purger, discardLogger(), nil)

	task, err := NewSessionPurgeTask(SessionPurgePayload{})
	require.NoError(t, err)

	start := time.Now().UTC()
	require.NoError(t, handler(context.Background(), task))
	assert.False(t, purger.before.Before(start))
}

func TestSessionPurgeHandlerPropagatesError(t *testing.T) {
	wantErr := errors.New("pool closed")
	purger := &stubPurger{err: wantErr}
	handler := NewSessionPurgeHandler(purger, discardLogger(), nil)

	task, err := NewSessionPurgeTask(SessionPurgePayload{Before: time.Now()})
	require.NoError(t, err)

	assert.ErrorIs(t, handler(context.Background(), task), wantErr)
}

func TestSessionPurgeHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewSessionPurgeHandler(&stubPurger{}, discardLogger(), nil)

	task := asynq.NewTask(TaskSessionPurge, []byte("{not json"))
	assert.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}
