package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/models"
	"github.com/diewo77/go-messages/internal/token"
	"github.com/diewo77/go-messages/internal/validation"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *token.Service) {
	t.Helper()
	// Unique in-memory database per test to avoid cross-test collisions;
	// busy_timeout covers concurrent writers in the backfill test.
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
	return NewService(db, tokens), db, tokens
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:                 "A",
		Email:                "a@x.com",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	}
}

func TestRegisterIssuesValidToken(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	user, raw, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, user.Role)
	require.Equal(t, models.StatusActive, user.Status)

	ident, err := tokens.Validate(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, user.ID, ident.UserID)
	require.Equal(t, models.RoleUser, ident.Role)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{"missing name", func(in *RegisterInput) { in.Name = "" }, "name"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *RegisterInput) { in.Password, in.PasswordConfirmation = "abc", "abc" }, "password"},
		{"confirmation mismatch", func(in *RegisterInput) { in.PasswordConfirmation = "different" }, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validRegistration()
			tc.mutate(&in)
			_, _, err := svc.Register(ctx, in)
			require.Error(t, err)
			var violations validation.Violations
			require.True(t, errors.As(err, &violations), "expected Violations, got %T", err)
			require.Contains(t, violations, tc.field)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, validRegistration())
	var violations validation.Violations
	require.True(t, errors.As(err, &violations), "expected Violations, got %T", err)
	require.Equal(t, "already_taken", violations["email"])
}

func TestRegisterAfterSoftDelete(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NoError(t, db.Delete(user).Error)

	// The address belongs to nobody visible anymore; registering again works.
	_, _, err = svc.Register(ctx, validRegistration())
	require.NoError(t, err)
}

func TestLoginFailureIsUniform(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "nobody@x.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "a@x.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsInactiveAndDeleted(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("status", models.StatusSuspended).Error)
	_, _, err = svc.Login(ctx, "a@x.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Model(user).Update("status", models.StatusActive).Error)
	require.NoError(t, db.Delete(user).Error)
	_, _, err = svc.Login(ctx, "a@x.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginStampsLastLogin(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.Nil(t, user.LastLoginAt)

	_, _, err = svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.NotNil(t, fresh.LastLoginAt)
}

func TestLoginBackfillsMissingRole(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user := seedPasswordUser(t, db, "b@x.com", "secret1", "")
	logged, _, err := svc.Login(ctx, "b@x.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, logged.Role)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.Equal(t, models.RoleUser, fresh.Role)
}

func TestConcurrentLoginsBackfillExactlyOneRole(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	user := seedPasswordUser(t, db, "c@x.com", "secret1", "")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, errs[n] = svc.Login(ctx, "c@x.com", "secret1")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.Equal(t, models.RoleUser, fresh.Role)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	_, raw, err := svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, raw))
	_, err = tokens.Validate(ctx, raw)
	require.ErrorIs(t, err, token.ErrRevokedToken)

	// Logging out again is harmless.
	require.NoError(t, svc.Logout(ctx, raw))
}

func TestRefreshKeepsSubject(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	user, raw, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, raw)
	require.NoError(t, err)
	ident, err := tokens.Validate(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, user.ID, ident.UserID)
}

func TestCurrentUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	got, err := svc.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Email, got.Email)

	_, err = svc.CurrentUser(ctx, user.ID+1000)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func seedPasswordUser(t *testing.T, db *gorm.DB, email, password, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Name:     "Seeded",
		Email:    email,
		Password: string(hash),
		Role:     role,
		Status:   models.StatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
