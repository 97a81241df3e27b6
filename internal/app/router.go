package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warden-web/warden/internal/auth"
	"github.com/warden-web/warden/internal/csrf"
	"github.com/warden-web/warden/internal/session"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *session.Manager
	CSRFService    *csrf.Service
	AuthHandler    *auth.Handler
}

// NewRouter constructs the chi.Router with Warden defaults.
func NewRouter(params RouterParams) (http.Handler, error) {
	r := chi.NewRouter()

	stack, err := MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFService:    params.CSRFService,
	})
	if err != nil {
		return nil, err
	}
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	return r, nil
}
