package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/warden-web/warden/internal/csrf"
	"github.com/warden-web/warden/internal/session"
	"github.com/warden-web/warden/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *session.Manager
	CSRFService    *csrf.Service
}

// MiddlewareStack installs the Warden middleware chain: request plumbing,
// security headers, rate limiting, session refresh and CSRF protection.
// Ordering matters: the session cookie is resolved before the CSRF layer
// runs so a rejected write never slides a session it should not.
func MiddlewareStack(cfg MiddlewareConfig) ([]func(http.Handler) http.Handler, error) {
	if cfg.CSRFService == nil {
		return nil, shared.NewConfigError("app: csrf service is required")
	}
	if cfg.SessionManager == nil {
		return nil, shared.NewConfigError("app: session manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	production := cfg.Config != nil && cfg.Config.IsProduction()
	csrfCookieMaxAge := csrf.DefaultCookieMaxAge
	cookieName, headerName := "", ""
	if cfg.Config != nil {
		cookieName = cfg.Config.CSRFCookie
		headerName = cfg.Config.CSRFHeader
		if cfg.Config.CSRFCookieMaxAge > 0 {
			csrfCookieMaxAge = int(cfg.Config.CSRFCookieMaxAge.Seconds())
		}
	}

	csrfMiddleware, err := csrf.Middleware(csrf.MiddlewareConfig{
		Logger:     cfg.Logger,
		Service:    cfg.CSRFService,
		CookieName: cookieName,
		HeaderName: headerName,
		Cookie: csrf.CookieOptions{
			Path:     "/",
			MaxAge:   csrfCookieMaxAge,
			HTTPOnly: true,
			Secure:   production,
			SameSite: http.SameSiteStrictMode,
		},
	})
	if err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		cfg.SessionManager.Refresh,
		csrfMiddleware,
	}, nil
}
