package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/models"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrExchangeFailed covers every failure mode of the external exchange;
	// callers only redirect to the login failure page, details go to logs.
	ErrExchangeFailed = errors.New("external authentication failed")
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"
)

// Profile is what the identity provider reports about the signed-in account.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GoogleProvider exchanges an authorization code for a Google profile.
// Endpoint fields default to the live Google endpoints and exist so tests can
// point at a fake provider.
type GoogleProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthEndpoint     string
	TokenEndpoint    string
	UserinfoEndpoint string

	HTTPClient *http.Client
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// AuthURL builds the consent-screen redirect target.
func (p *GoogleProvider) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return endpoint(p.AuthEndpoint, googleAuthURL) + "?" + q.Encode()
}

// Exchange trades the authorization code for an access token, then fetches
// the userinfo document with it.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("redirect_uri", p.RedirectURL)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(p.TokenEndpoint, googleTokenURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrExchangeFailed, resp.StatusCode)
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	ureq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint(p.UserinfoEndpoint, googleUserinfoURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	ureq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	uresp, err := p.client().Do(ureq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer uresp.Body.Close()
	if uresp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo endpoint returned %d", ErrExchangeFailed, uresp.StatusCode)
	}
	var profile Profile
	if err := json.NewDecoder(io.LimitReader(uresp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: profile without email", ErrExchangeFailed)
	}
	return &profile, nil
}

func (p *GoogleProvider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func endpoint(configured, def string) string {
	if configured != "" {
		return configured
	}
	return def
}

// SocialLogin links or creates the local account for an externally
// authenticated profile and opens a session for it. New accounts get a
// pre-verified email, no usable local password, and the default role.
func (s *Service) SocialLogin(ctx context.Context, profile *Profile) (*models.User, string, error) {
	email := normalizeEmail(profile.Email)
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		now := time.Now()
		user = models.User{
			Name:            strings.TrimSpace(profile.Name),
			Email:           email,
			Password:        "", // provider owns the credential
			Role:            models.RoleUser,
			Status:          models.StatusActive,
			GoogleID:        profile.ID,
			EmailVerifiedAt: &now,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", err
	default:
		if user.Status != models.StatusActive {
			return nil, "", ErrInvalidCredentials
		}
		if err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("google_id", profile.ID).Error; err != nil {
			return nil, "", err
		}
		user.GoogleID = profile.ID
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
