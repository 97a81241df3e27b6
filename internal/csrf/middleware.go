package csrf

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/warden-web/warden/internal/platform/httpx"
	"github.com/warden-web/warden/internal/shared"
)

// Default wire names.
const (
	DefaultCookieName   = "CSRF-TOKEN"
	DefaultHeaderName   = "X-CSRF-TOKEN"
	DefaultFormField    = "csrf_token"
	DefaultActionHeader = "X-Action"
	// DefaultCookieMaxAge is one week in seconds.
	DefaultCookieMaxAge = 604800
)

// CookieOptions carries the attributes of the CSRF cookie.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

// MiddlewareConfig wires the token service into one request/response
// exchange. Zero values fall back to the documented defaults.
type MiddlewareConfig struct {
	Logger       *slog.Logger
	Service      *Service
	CookieName   string
	HeaderName   string
	FormField    string
	ActionHeader string
	Cookie       CookieOptions
}

func (cfg MiddlewareConfig) withDefaults() MiddlewareConfig {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.FormField == "" {
		cfg.FormField = DefaultFormField
	}
	if cfg.ActionHeader == "" {
		cfg.ActionHeader = DefaultActionHeader
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie.Path = "/"
	}
	if cfg.Cookie.MaxAge == 0 {
		cfg.Cookie.MaxAge = DefaultCookieMaxAge
	}
	if cfg.Cookie.SameSite == 0 {
		cfg.Cookie.SameSite = http.SameSiteStrictMode
	}
	return cfg
}

// Middleware returns the CSRF protection middleware. Per request: read the
// cookie, issue a fresh token when absent or echo the current one through the
// response header, extract the candidate token on write methods and reject a
// missing or mismatched candidate with a 403 JSON body.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Service == nil {
		return nil, shared.NewConfigError("csrf: token service is required")
	}
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookieToken := readCookieToken(r, cfg.CookieName)
			effective := cookieToken
			if cookieToken == "" {
				fresh, err := cfg.Service.Generate()
				if err != nil {
					cfg.Logger.Error("csrf token generation failed", slog.Any("error", err))
					httpx.Error(w, http.StatusInternalServerError, "token generation failed")
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    encodeCookieValue(fresh),
					Path:     cfg.Cookie.Path,
					Domain:   cfg.Cookie.Domain,
					MaxAge:   cfg.Cookie.MaxAge,
					HttpOnly: cfg.Cookie.HTTPOnly,
					Secure:   cfg.Cookie.Secure,
					SameSite: cfg.Cookie.SameSite,
				})
				// A write request arriving without a prior cookie has no
				// token to check against; it fails closed below.
				effective = fresh
			} else {
				w.Header().Set(cfg.HeaderName, cookieToken)
			}
			r = r.WithContext(contextWithToken(r.Context(), effective))

			candidate, applicable, err := extractCandidate(r, cfg)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					cfg.Logger.Warn("csrf extraction failed",
						slog.String("path", r.URL.Path),
						slog.Any("error", err))
					httpx.Error(w, http.StatusBadRequest, pe.Msg)
					return
				}
				cfg.Logger.Error("csrf extraction failed", slog.Any("error", err))
				httpx.Error(w, http.StatusBadRequest, "malformed request")
				return
			}

			if applicable {
				if reason, ok := validate(cfg.Service, cookieToken, candidate); !ok {
					cfg.Logger.Warn("csrf validation failed",
						slog.String("path", r.URL.Path),
						slog.String("reason", reason))
					httpx.Error(w, http.StatusForbidden, reason)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validate enforces the write-request contract: a candidate must exist, must
// carry a valid signature and must equal the cookie-held token.
func validate(svc *Service, cookieToken, candidate string) (string, bool) {
	if candidate == "" {
		return shared.ErrCSRFTokenMissing.Error(), false
	}
	if cookieToken == "" {
		// First-ever exchange: no prior token to check against.
		return shared.ErrCSRFTokenMissing.Error(), false
	}
	if !svc.Verify(candidate) {
		return shared.ErrCSRFTokenMismatch.Error(), false
	}
	if !hmac.Equal([]byte(candidate), []byte(cookieToken)) {
		return shared.ErrCSRFTokenMismatch.Error(), false
	}
	return "", true
}

type tokenContextKey struct{}

func contextWithToken(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, tok)
}

// TokenFromRequest returns the token the middleware resolved for this request,
// covering the first exchange where the cookie was only just issued. Outside
// the middleware it falls back to the request cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if tok, ok := r.Context().Value(tokenContextKey{}).(string); ok && tok != "" {
		return tok
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return readCookieToken(r, cookieName)
}

// readCookieToken unwraps the transport base64 layer. An undecodable cookie
// counts as absent and gets replaced.
func readCookieToken(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(raw)
}

func encodeCookieValue(tok string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(tok))
}
