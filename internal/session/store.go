// Package session binds an authenticated identity to a renewable,
// cookie-carried session handle. Session state itself lives behind the Store
// adaptor; the core only knows the identifier field inside the record.
package session

import (
	"context"
	"time"
)

// ExpiresField is the record key adaptors use for the RFC3339 expiry, read
// by the refresh middleware to decide whether the store needs touching.
const ExpiresField = "expires"

// Record is an opaque bag of session fields owned by the store adaptor. The
// lifecycle service reads only the configured identifier field and, when
// present, ExpiresField.
type Record map[string]any

// ID extracts the string value of the given identifier field.
func (r Record) ID(field string) string {
	if r == nil {
		return ""
	}
	id, _ := r[field].(string)
	return id
}

// Redact returns a copy without the identifier field. The identifier is the
// bearer handle protected by the httpOnly cookie; responses rendered to page
// scripts must never include it.
func (r Record) Redact(field string) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if k == field {
			continue
		}
		out[k] = v
	}
	return out
}

// Store is the external session-store adaptor. All operations may fail;
// failures are caught and logged by the Manager and degrade to "no session",
// they never surface to the end user as raw errors.
type Store interface {
	// CreateSession persists a new session for the given user data and
	// returns the full record including the identifier field.
	CreateSession(ctx context.Context, user Record, maxAge time.Duration) (Record, error)
	// GetSessionAndUser resolves a session by identifier. A missing session
	// is (nil, nil), not an error.
	GetSessionAndUser(ctx context.Context, token string) (Record, error)
	// UpdateSession merges partial into the stored record and slides its
	// expiration. Unknown identifiers yield (nil, nil).
	UpdateSession(ctx context.Context, partial Record) (Record, error)
	// DeleteSession removes a session. Deleting an unknown identifier is not
	// an error.
	DeleteSession(ctx context.Context, token string) error
}
