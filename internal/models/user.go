package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles a user can hold. Exactly one at a time; login backfills RoleUser for
// accounts created without one.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account statuses. Only active users can authenticate.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User represents an authenticated user in the system.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"size:255" json:"name"`
	// Email uniqueness is enforced at registration among non-deleted rows,
	// not by a unique index, so a soft-deleted address can be re-registered.
	Email    string `gorm:"size:255;not null;index" json:"email"`
	Password string `gorm:"size:255" json:"-"` // bcrypt hash, never exposed in JSON
	// Role is "" until assigned.
	Role            string     `gorm:"size:32;index" json:"role,omitempty"`
	Status          string     `gorm:"size:32;not null;default:active" json:"status"`
	GoogleID        string     `gorm:"size:255;index" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
