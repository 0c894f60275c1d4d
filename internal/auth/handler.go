package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

// Handler wires HTTP endpoints for admin authentication.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		now:            time.Now,
	}
}

// MountRoutes registers the routes reachable without a signed-in admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Get("/session", h.showSession)
}

// MountAuthenticated registers routes that need RequireAdmin and CSRF.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

type sessionResponse struct {
	Admin     Profile `json:"admin"`
	UserID    int64   `json:"userId"`
	CSRFToken string  `json:"csrfToken"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.logger.Warn("admin login rejected", slog.String("email", req.Email))
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid email or password")
		return
	case errors.Is(err, shared.ErrAccountDisabled):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "Account disabled")
		return
	case err != nil:
		h.logger.Error("admin login failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	h.sessionManager.Rotate(sess)
	sess.SetAdmin(user.ID, user.Email, h.now().UTC())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("mint csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.logger.Info("admin signed in", slog.Int64("admin_id", user.ID))
	httpx.JSON(w, http.StatusOK, sessionResponse{Admin: user.Profile(), UserID: user.ID, CSRFToken: token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.sessionManager.Destroy(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.AdminID() == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "admin session required")
		return
	}
	user, err := h.service.Lookup(r.Context(), sess.AdminID())
	if errors.Is(err, ErrNotFound) || (err == nil && !user.IsActive) {
		h.sessionManager.Destroy(sess)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "admin session required")
		return
	}
	if err != nil {
		h.logger.Error("load session admin", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Admin: user.Profile(), UserID: user.ID, CSRFToken: token})
}
