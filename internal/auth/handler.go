package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-web/warden/internal/csrf"
	"github.com/warden-web/warden/internal/platform/httpx"
	"github.com/warden-web/warden/internal/session"
	"github.com/warden-web/warden/internal/shared"
)

// Handler wires the JSON endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *session.Manager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.Manager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Get("/session", h.handleSession)
	r.Post("/signin", h.handleSignIn)
	r.Post("/signout", h.handleSignOut)
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{
		"csrfToken": csrf.TokenFromRequest(r, ""),
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	record := session.RecordFromContext(r.Context())
	if record == nil {
		record = h.sessions.GetServerSession(r.Context(), r)
	}
	if record == nil {
		httpx.JSON(w, http.StatusOK, nil)
		return
	}
	// The identifier is the cookie-carried bearer handle; it stays server-side.
	httpx.JSON(w, http.StatusOK, record.Redact(h.sessions.SessionField()))
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// Which field failed is deliberately not disclosed.
		httpx.Error(w, http.StatusBadRequest, shared.ErrInvalidCredentials.Error())
		return
	}

	user, record, err := h.sessions.SignIn(r.Context(), w, "credentials", session.Credentials{
		"email":    req.Email,
		"password": req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Error(w, http.StatusUnauthorized, shared.ErrInvalidCredentials.Error())
		case errors.Is(err, shared.ErrUnsupportedProvider) || shared.IsConfigError(err):
			h.logger.Error("sign-in misconfigured", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "sign-in unavailable")
		default:
			h.logger.Error("sign-in failed", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "sign-in unavailable")
		}
		return
	}

	if id := record.ID(h.sessions.SessionField()); id != "" {
		userID, _ := strconv.ParseInt(user.ID, 10, 64)
		expiresAt := time.Now().Add(h.sessions.MaxAge())
		if err := h.service.RegisterSession(r.Context(), id, userID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session audit", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if id := h.sessions.SessionID(r); id != "" {
		if err := h.service.RemoveSession(r.Context(), id); err != nil {
			h.logger.Warn("remove session audit", slog.Any("error", err))
		}
	}
	redirect := h.sessions.SignOut(r.Context(), w, r)
	httpx.JSON(w, http.StatusOK, map[string]string{"redirect": redirect})
}
