// Package auth orchestrates the session lifecycle: registration, login,
// logout, refresh and the who-am-i lookup, on top of the token service and
// the user store.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/models"
	"github.com/diewo77/go-messages/internal/token"
	"github.com/diewo77/go-messages/internal/validation"
)

var (
	// ErrInvalidCredentials is deliberately uniform for unknown email and
	// wrong password; the response must not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// dummyHash keeps the bcrypt cost on the unknown-email login path so response
// timing does not leak whether an email exists.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("go-messages timing pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

type Service struct {
	db     *gorm.DB
	tokens *token.Service
}

func NewService(db *gorm.DB, tokens *token.Service) *Service {
	return &Service{db: db, tokens: tokens}
}

type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// Register creates a user with the default role and opens a session for it.
// Validation failures come back as validation.Violations.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	v := validation.Violations{}
	validation.Required("name", in.Name, v)
	validation.MaxLen("name", in.Name, 255, v)
	validation.Required("email", in.Email, v)
	validation.Email("email", in.Email, v)
	validation.Required("password", in.Password, v)
	validation.MinLen("password", in.Password, 6, v)
	validation.Confirmed("password", in.Password, in.PasswordConfirmation, v)
	if _, seen := v["email"]; !seen {
		// Soft-deleted rows are outside gorm's default scope, so a deleted
		// address can be registered again.
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("email = ?", in.Email).Count(&count).Error; err != nil {
			return nil, "", err
		}
		if count > 0 {
			v["email"] = "already_taken"
		}
	}
	if !v.Empty() {
		return nil, "", v
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	user := models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: string(hash),
		Role:     models.RoleUser,
		Status:   models.StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, "", err
	}
	tok, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, tok, nil
}

// Login authenticates by email and password against active, non-deleted
// users and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND status = ?", email, models.StatusActive).
		First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Equalize work with a throwaway compare before failing.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, "", ErrInvalidCredentials
	case err != nil:
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := s.recordLogin(ctx, &user); err != nil {
		return nil, "", err
	}
	tok, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, "", err
	}
	return &user, tok, nil
}

// Logout invalidates the presented token. A token that cannot be resolved at
// all is reported as an error; invalidating twice is harmless.
func (s *Service) Logout(ctx context.Context, raw string) error {
	return s.tokens.Invalidate(ctx, raw)
}

func (s *Service) Refresh(ctx context.Context, raw string) (string, error) {
	return s.tokens.Refresh(ctx, raw)
}

// CurrentUser loads a fresh snapshot by id; the token's role claim may be
// stale relative to what this returns.
func (s *Service) CurrentUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// recordLogin stamps last_login_at (last-write-wins) and backfills the
// default role for users that have none. The role write is a conditional
// UPDATE so two concurrent logins can never assign twice.
func (s *Service) recordLogin(ctx context.Context, user *models.User) error {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("last_login_at", now).Error; err != nil {
		return err
	}
	user.LastLoginAt = &now
	if user.Role == "" {
		res := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND (role IS NULL OR role = '')", user.ID).
			Update("role", models.RoleUser)
		if res.Error != nil {
			return res.Error
		}
		// Whether this call or a concurrent one won, the role is set now.
		user.Role = models.RoleUser
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
