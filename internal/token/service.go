// Package token issues and validates the signed bearer tokens that carry a
// session. A token binds a user id and the role held at issuance; the role is
// deliberately not re-checked on validate, callers needing the current role
// must go back to the user store.
package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("token not provided")
	ErrInvalidToken = errors.New("token is invalid")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been invalidated")
)

// Claims carried inside a session token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the decoded result of a successful validation.
type Identity struct {
	UserID    uint
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

type Config struct {
	Secret []byte
	TTL    time.Duration
	// RefreshGrace is how long past expiry a token may still be exchanged
	// for a fresh one. Zero means expired tokens cannot be refreshed.
	RefreshGrace time.Duration
}

type Service struct {
	secret       []byte
	ttl          time.Duration
	refreshGrace time.Duration
	blocklist    Blocklist
	now          func() time.Time
}

func NewService(cfg Config, bl Blocklist) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token: TTL must be positive")
	}
	if cfg.RefreshGrace < 0 {
		return nil, errors.New("token: negative refresh grace")
	}
	if bl == nil {
		bl = NewMemoryBlocklist()
	}
	return &Service{
		secret:       cfg.Secret,
		ttl:          cfg.TTL,
		refreshGrace: cfg.RefreshGrace,
		blocklist:    bl,
		now:          time.Now,
	}, nil
}

// Issue signs a token for the user, capturing the role claim as given.
// A fresh jti makes every issued token individually revocable.
func (s *Service) Issue(userID uint, role string) (string, error) {
	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate verifies signature, expiry and revocation and returns the decoded
// identity. Expiry is exclusive: a token presented at exactly its expiry
// instant is already expired.
func (s *Service) Validate(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}
	return identityFromClaims(claims)
}

// Refresh exchanges a structurally valid, non-revoked token for a fresh one
// carrying the same subject and role claim. Expired tokens are accepted up to
// the grace window past expiry; the replaced token id is revoked so the old
// token cannot be replayed.
func (s *Service) Refresh(ctx context.Context, raw string) (string, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return "", err
	}
	now := s.now()
	if !now.Before(claims.ExpiresAt.Time.Add(s.refreshGrace)) {
		return "", ErrExpiredToken
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return "", err
	}
	ident, err := identityFromClaims(claims)
	if err != nil {
		return "", err
	}
	if err := s.blocklist.Add(ctx, claims.ID, s.revocationTTL(claims.ExpiresAt.Time, now)); err != nil {
		return "", err
	}
	return s.Issue(ident.UserID, ident.Role)
}

// Invalidate revokes the token id for as long as the token could still be
// presented (remaining lifetime plus the refresh grace). Revoking an already
// revoked token is a no-op.
func (s *Service) Invalidate(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	return s.blocklist.Add(ctx, claims.ID, s.revocationTTL(claims.ExpiresAt.Time, s.now()))
}

// parse verifies the signature and shape but not expiry; expiry is enforced
// by the callers so Refresh can apply the grace window.
func (s *Service) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) checkRevoked(ctx context.Context, tokenID string) error {
	revoked, err := s.blocklist.Contains(ctx, tokenID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrRevokedToken
	}
	return nil
}

func (s *Service) revocationTTL(exp, now time.Time) time.Duration {
	ttl := exp.Add(s.refreshGrace).Sub(now)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func identityFromClaims(claims *Claims) (*Identity, error) {
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:    uint(id),
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
