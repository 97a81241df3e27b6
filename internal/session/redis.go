package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists session records as JSON under session:<id> keys with a
// TTL matching the session max-age. Updates slide the TTL forward.
type RedisStore struct {
	client       *redis.Client
	sessionField string
	maxAge       time.Duration
}

// NewRedisStore constructs the adaptor. sessionField names the identifier
// key inside each record.
func NewRedisStore(client *redis.Client, sessionField string, maxAge time.Duration) *RedisStore {
	if sessionField == "" {
		sessionField = DefaultSessionField
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &RedisStore{client: client, sessionField: sessionField, maxAge: maxAge}
}

var _ Store = (*RedisStore)(nil)

// CreateSession persists a fresh record for the user data.
func (s *RedisStore) CreateSession(ctx context.Context, user Record, maxAge time.Duration) (Record, error) {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	id := uuid.NewString()
	record := Record{
		s.sessionField: id,
		"user":         map[string]any(user),
		ExpiresField:   time.Now().Add(maxAge).UTC().Format(time.RFC3339),
	}
	if err := s.write(ctx, id, record, maxAge); err != nil {
		return nil, err
	}
	return record, nil
}

// GetSessionAndUser resolves a record; missing sessions are (nil, nil).
func (s *RedisStore) GetSessionAndUser(ctx context.Context, token string) (Record, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session/redis: get: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("session/redis: decode: %w", err)
	}
	return record, nil
}

// UpdateSession merges partial into the stored record and slides the TTL.
func (s *RedisStore) UpdateSession(ctx context.Context, partial Record) (Record, error) {
	id := partial.ID(s.sessionField)
	if id == "" {
		return nil, errors.New("session/redis: update without identifier")
	}
	record, err := s.GetSessionAndUser(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	for k, v := range partial {
		if k == s.sessionField {
			continue
		}
		record[k] = v
	}
	record[ExpiresField] = time.Now().Add(s.maxAge).UTC().Format(time.RFC3339)
	if err := s.write(ctx, id, record, s.maxAge); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteSession removes a record; unknown identifiers are a no-op.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session/redis: del: %w", err)
	}
	return nil
}

func (s *RedisStore) write(ctx context.Context, id string, record Record, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session/redis: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("session/redis: set: %w", err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return "session:" + id
}
