package session

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/warden-web/warden/internal/shared"
)

// Defaults for the session cookie wire contract.
const (
	DefaultCookieName   = "SESSION"
	DefaultSessionField = "sessionId"
	DefaultMaxAge       = 24 * time.Hour
	DefaultRedirect     = "/"
)

// ManagerConfig wires the lifecycle service. Store is mandatory.
type ManagerConfig struct {
	Logger       *slog.Logger
	Store        Store
	Providers    []Provider
	CookieName   string
	SessionField string
	MaxAge       time.Duration
	// UpdateAge is the minimum age before a refresh touches the store again.
	// Zero refreshes on every authenticated request.
	UpdateAge time.Duration
	// InsecureCookie drops the Secure attribute for development over plain
	// HTTP. The zero value emits Secure cookies.
	InsecureCookie bool
	// SignOutRedirect is returned by SignOut as the post-sign-out target.
	SignOutRedirect string
}

// Manager issues, resolves, refreshes and destroys cookie-carried sessions.
type Manager struct {
	cfg ManagerConfig
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, shared.NewConfigError("session: store adaptor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.SessionField == "" {
		cfg.SessionField = DefaultSessionField
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.SignOutRedirect == "" {
		cfg.SignOutRedirect = DefaultRedirect
	}
	return &Manager{cfg: cfg}, nil
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string { return m.cfg.CookieName }

// SessionField returns the identifier field name inside records.
func (m *Manager) SessionField() string { return m.cfg.SessionField }

// MaxAge exposes the configured session lifetime.
func (m *Manager) MaxAge() time.Duration { return m.cfg.MaxAge }

// SessionID returns the identifier carried by the request's session cookie,
// empty when absent or undecodable.
func (m *Manager) SessionID(r *http.Request) string { return m.readCookie(r) }

// SignIn resolves the provider, authorizes the credentials, persists a new
// session and sets the session cookie. Invalid credentials come back as
// shared.ErrInvalidCredentials; an unknown provider id as
// shared.ErrUnsupportedProvider. The created record is returned so callers
// can mirror it into audit storage.
func (m *Manager) SignIn(ctx context.Context, w http.ResponseWriter, providerID string, creds Credentials) (*User, Record, error) {
	provider := m.findProvider(providerID)
	if provider == nil {
		return nil, nil, shared.ErrUnsupportedProvider
	}

	var user *User
	switch p := provider.(type) {
	case CredentialsProvider:
		u, err := p.Authorize(ctx, creds)
		if err != nil {
			return nil, nil, err
		}
		user = u
	case OAuthProvider:
		return nil, nil, shared.NewConfigError("session: oauth provider %q is not implemented", p.ID)
	default:
		return nil, nil, shared.NewConfigError("session: unknown provider kind %T", provider)
	}
	if user == nil {
		return nil, nil, shared.ErrInvalidCredentials
	}

	record, err := m.cfg.Store.CreateSession(ctx, Record{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}, m.cfg.MaxAge)
	if err != nil {
		return nil, nil, err
	}
	id := record.ID(m.cfg.SessionField)
	if id == "" {
		return nil, nil, shared.NewConfigError("session: store returned a record without %q", m.cfg.SessionField)
	}

	m.setCookie(w, id, int(m.cfg.MaxAge.Seconds()))
	return user, record, nil
}

// GetServerSession resolves the session carried by the request cookie. A
// missing or undecodable cookie and adaptor failures all resolve to nil;
// failures are logged, never propagated.
func (m *Manager) GetServerSession(ctx context.Context, r *http.Request) Record {
	id := m.readCookie(r)
	if id == "" {
		return nil
	}
	record, err := m.cfg.Store.GetSessionAndUser(ctx, id)
	if err != nil {
		m.cfg.Logger.Warn("session lookup failed", slog.Any("error", err))
		return nil
	}
	return record
}

// Refresh is the per-request middleware sliding the session expiration. The
// refreshed record is stored in the request context; requests without a valid
// session proceed unauthenticated.
func (m *Manager) Refresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := m.readCookie(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		record, err := m.cfg.Store.GetSessionAndUser(ctx, id)
		if err != nil {
			m.cfg.Logger.Warn("session lookup failed", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if record == nil {
			next.ServeHTTP(w, r)
			return
		}

		if m.needsRefresh(record) {
			refreshed, err := m.cfg.Store.UpdateSession(ctx, Record{m.cfg.SessionField: id})
			if err != nil {
				m.cfg.Logger.Warn("session refresh failed", slog.Any("error", err))
			} else if refreshed != nil {
				record = refreshed
				if rotated := record.ID(m.cfg.SessionField); rotated != "" && rotated != id {
					m.setCookie(w, rotated, int(m.cfg.MaxAge.Seconds()))
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(ContextWithRecord(ctx, record)))
	})
}

// SignOut deletes the session behind the cookie and always clears the cookie,
// even when store cleanup fails. Returns the redirect target.
func (m *Manager) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	if id := m.readCookie(r); id != "" {
		if err := m.cfg.Store.DeleteSession(ctx, id); err != nil {
			m.cfg.Logger.Warn("session delete failed", slog.Any("error", err))
		}
	}
	m.clearCookie(w)
	return m.cfg.SignOutRedirect
}

// needsRefresh reports whether the record's expiry has consumed at least
// UpdateAge of its window. Records without a parseable expiry always refresh.
func (m *Manager) needsRefresh(record Record) bool {
	if m.cfg.UpdateAge <= 0 {
		return true
	}
	raw, _ := record[ExpiresField].(string)
	expires, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true
	}
	age := m.cfg.MaxAge - time.Until(expires)
	return age >= m.cfg.UpdateAge
}

func (m *Manager) findProvider(id string) Provider {
	for _, p := range m.cfg.Providers {
		if p.ProviderID() == id {
			return p
		}
	}
	return nil
}

// readCookie unwraps the base64 transport layer around the identifier. An
// undecodable or empty value counts as no session.
func (m *Manager) readCookie(r *http.Request) string {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil || len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(id)),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !m.cfg.InsecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !m.cfg.InsecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
