package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-messages/internal/auth"
	"github.com/diewo77/go-messages/internal/httpx"
	"github.com/diewo77/go-messages/internal/middleware"
	"github.com/diewo77/go-messages/internal/token"
	"github.com/diewo77/go-messages/internal/validation"
)

type AuthHandler struct {
	Auth *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler { return &AuthHandler{Auth: svc} }

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	user, tok, err := h.Auth.Register(r.Context(), in)
	if err != nil {
		var v validation.Violations
		if errors.As(err, &v) {
			httpx.JSONError(w, http.StatusUnprocessableEntity, "validation failed", v)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "could not register user", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "user successfully registered",
		"token":   tok,
		"user":    user,
	})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	user, tok, err := h.Auth.Login(r.Context(), in.Email, in.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "could not login", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "successfully logged in",
		"token":   tok,
		"user":    user,
	})
}

// Logout handles POST /logout. It runs behind the auth gate, so the token is
// known to be valid here; invalidation makes any later replay fail.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, _ := middleware.BearerToken(r)
	if err := h.Auth.Logout(r.Context(), raw); err != nil {
		middleware.WriteAuthError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "successfully logged out"})
}

// Refresh handles POST /refresh. It does its own token extraction instead of
// sitting behind the gate: a token expired within the grace window must still
// be exchangeable here even though the gate would reject it.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := middleware.BearerToken(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "refresh token not provided", nil)
		return
	}
	tok, err := h.Auth.Refresh(r.Context(), raw)
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		httpx.JSONError(w, http.StatusUnauthorized, "refresh token has expired, please login again", nil)
	case errors.Is(err, token.ErrBlocklistUnavailable):
		httpx.JSONError(w, http.StatusServiceUnavailable, "authentication backend unavailable", nil)
	case err != nil:
		httpx.JSONError(w, http.StatusBadRequest, "could not refresh token", nil)
	default:
		httpx.JSON(w, http.StatusOK, map[string]string{"token": tok})
	}
}

// Me handles GET /user: a fresh snapshot from the store, not the stale claim.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	user, err := h.Auth.CurrentUser(r.Context(), ident.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		// Token outlived the account (deleted since issuance).
		httpx.JSONError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "could not load user", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
