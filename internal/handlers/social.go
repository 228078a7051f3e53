package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/diewo77/go-messages/internal/auth"
	"github.com/diewo77/go-messages/internal/httpx"
)

const stateCookieName = "oauth_state"

// SocialHandler drives the browser half of the OAuth dance; the code
// exchange itself lives in the auth package.
type SocialHandler struct {
	Auth         *auth.Service
	Provider     *auth.GoogleProvider
	HomeURL      string
	CookieSecure bool
}

// Redirect handles GET /auth/{provider}/redirect.
func (h *SocialHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "provider") != h.Provider.Name() {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "unsupported provider", nil)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	http.Redirect(w, r, h.Provider.AuthURL(state), http.StatusFound)
}

// Callback handles GET /auth/{provider}/callback. On success the session
// token is handed to the browser as an HttpOnly cookie and the user is sent
// home; every failure lands on the login page with an error hint.
func (h *SocialHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "provider") != h.Provider.Name() {
		h.failLogin(w, r, "unsupported provider")
		return
	}
	state := r.URL.Query().Get("state")
	c, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || c.Value != state {
		h.failLogin(w, r, "invalid state")
		return
	}
	// One-shot: the state cookie is consumed either way.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.failLogin(w, r, "missing authorization code")
		return
	}
	profile, err := h.Provider.Exchange(r.Context(), code)
	if err != nil {
		h.failLogin(w, r, "external authentication failed")
		return
	}
	_, tok, err := h.Auth.SocialLogin(r.Context(), profile)
	if err != nil {
		h.failLogin(w, r, "could not sign in")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.home(), http.StatusFound)
}

func (h *SocialHandler) failLogin(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(reason), http.StatusFound)
}

func (h *SocialHandler) home() string {
	if h.HomeURL != "" {
		return h.HomeURL
	}
	return "/"
}
