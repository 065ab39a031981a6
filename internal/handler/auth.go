package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sessionauth/sessionauth-go/internal/logging"
	"github.com/sessionauth/sessionauth-go/internal/middleware"
	"github.com/sessionauth/sessionauth-go/internal/model"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

// Authenticator is the credential service behind the auth endpoints.
type Authenticator interface {
	Me(ctx context.Context, sc *session.Context) (*model.User, error)
	Register(ctx context.Context, sc *session.Context, creds model.Credentials) (model.UserResult, error)
	Login(ctx context.Context, sc *session.Context, creds model.Credentials) (model.UserResult, error)
	Logout(ctx context.Context, sc *session.Context) bool
}

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service Authenticator
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// HandleRegister handles POST /api/v1/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	result, err := h.service.Register(r.Context(), middleware.SessionFromContext(r.Context()), creds)
	if err != nil {
		h.internalError(w, "register failed", err)
		return
	}
	if result.Failed() {
		writeJSON(w, http.StatusBadRequest, result.ToResponse())
		return
	}

	writeJSON(w, http.StatusCreated, result.ToResponse())
}

// HandleLogin handles POST /api/v1/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	result, err := h.service.Login(r.Context(), middleware.SessionFromContext(r.Context()), creds)
	if err != nil {
		h.internalError(w, "login failed", err)
		return
	}
	if result.Failed() {
		writeJSON(w, http.StatusBadRequest, result.ToResponse())
		return
	}

	writeJSON(w, http.StatusOK, result.ToResponse())
}

// HandleMe handles GET /api/v1/auth/me requests. A request without a
// session gets a null user, not an error.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		h.internalError(w, "me failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.UserResponse{"user": user.ToResponse()})
}

// HandleLogout handles POST /api/v1/auth/logout requests.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ok := h.service.Logout(r.Context(), middleware.SessionFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (h *AuthHandler) internalError(w http.ResponseWriter, msg string, err error) {
	logging.LogError(h.logger, msg, err)
	writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
}
