package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/auth"
	"github.com/diewo77/go-messages/internal/middleware"
	"github.com/diewo77/go-messages/internal/models"
	"github.com/diewo77/go-messages/internal/token"
)

type testEnv struct {
	db     *gorm.DB
	tokens *token.Service
	auth   *auth.Service
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}))

	tokens, err := token.NewService(token.Config{
		Secret:       []byte("test-secret"),
		TTL:          time.Hour,
		RefreshGrace: 2 * time.Hour,
	}, token.NewMemoryBlocklist())
	require.NoError(t, err)
	svc := auth.NewService(db, tokens)

	ah := NewAuthHandler(svc)
	mh := NewMessageHandler(db)

	r := chi.NewRouter()
	r.Post("/register", ah.Register)
	r.Post("/login", ah.Login)
	r.Post("/refresh", ah.Refresh)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Post("/logout", ah.Logout)
		r.Get("/user", ah.Me)
		r.Route("/messages", func(r chi.Router) {
			r.Get("/", mh.List)
			r.Post("/", mh.Create)
			r.Get("/{id}", mh.Show)
			r.Put("/{id}", mh.Update)
			r.Delete("/{id}", mh.Delete)
		})
	})
	return &testEnv{db: db, tokens: tokens, auth: svc, router: r}
}

func (e *testEnv) request(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

// registerUser registers through the service and returns the user with a
// fresh token.
func (e *testEnv) registerUser(t *testing.T, name, email string) (*models.User, string) {
	t.Helper()
	user, raw, err := e.auth.Register(context.Background(), auth.RegisterInput{
		Name:                 name,
		Email:                email,
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	})
	require.NoError(t, err)
	return user, raw
}

// promoteAdmin flips the role in the store and issues a token carrying the
// admin claim.
func (e *testEnv) promoteAdmin(t *testing.T, user *models.User) string {
	t.Helper()
	require.NoError(t, e.db.Model(user).Update("role", models.RoleAdmin).Error)
	raw, err := e.tokens.Issue(user.ID, models.RoleAdmin)
	require.NoError(t, err)
	return raw
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), "body: %s", w.Body.String())
}
