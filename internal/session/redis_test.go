package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-web/warden/internal/session"
)

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return session.NewRedisStore(client, "sessionId", time.Hour), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	record, err := store.CreateSession(ctx, session.Record{"id": "7", "email": "user@test.local"}, time.Hour)
	require.NoError(t, err)
	id := record.ID("sessionId")
	require.NotEmpty(t, id)

	loaded, err := store.GetSessionAndUser(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, id, loaded.ID("sessionId"))
	user, ok := loaded["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user@test.local", user["email"])
}

func TestRedisStoreMissingSession(t *testing.T) {
	store, _ := newRedisStore(t)

	record, err := store.GetSessionAndUser(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStoreUpdateSlidesTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	record, err := store.CreateSession(ctx, session.Record{"id": "7"}, time.Hour)
	require.NoError(t, err)
	id := record.ID("sessionId")

	mr.FastForward(30 * time.Minute)
	updated, err := store.UpdateSession(ctx, session.Record{"sessionId": id, "lastSeen": "now"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "now", updated["lastSeen"])

	// TTL slid back to the full hour.
	ttl := mr.TTL("session:" + id)
	assert.InDelta(t, time.Hour, ttl, float64(time.Minute))
}

func TestRedisStoreUpdateUnknownSession(t *testing.T) {
	store, _ := newRedisStore(t)

	record, err := store.UpdateSession(context.Background(), session.Record{"sessionId": "gone"})
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	record, err := store.CreateSession(ctx, session.Record{"id": "7"}, time.Hour)
	require.NoError(t, err)
	id := record.ID("sessionId")

	require.NoError(t, store.DeleteSession(ctx, id))
	loaded, err := store.GetSessionAndUser(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op.
	require.NoError(t, store.DeleteSession(ctx, id))
}

func TestRecordRedact(t *testing.T) {
	record := session.Record{
		"sessionId": "abc",
		"user":      map[string]any{"email": "user@test.local"},
		"expires":   "2026-01-01T00:00:00Z",
	}

	public := record.Redact("sessionId")
	assert.NotContains(t, public, "sessionId")
	assert.Equal(t, record["user"], public["user"])
	assert.Equal(t, record["expires"], public["expires"])

	// The original stays intact for server-side use.
	assert.Equal(t, "abc", record.ID("sessionId"))

	var nilRecord session.Record
	assert.Nil(t, nilRecord.Redact("sessionId"))
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	record, err := store.CreateSession(ctx, session.Record{"id": "7"}, time.Minute)
	require.NoError(t, err)
	id := record.ID("sessionId")

	mr.FastForward(2 * time.Minute)
	loaded, err := store.GetSessionAndUser(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
