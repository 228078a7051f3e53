package db

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/models"
)

// Seed provisions the two well-known accounts when the users table is empty.
// Both log in with "password"; change it anywhere that matters.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	users := []models.User{
		{
			Name:            "John Admin",
			Email:           "admin@example.com",
			Password:        string(hash),
			Role:            models.RoleAdmin,
			Status:          models.StatusActive,
			EmailVerifiedAt: &now,
		},
		{
			Name:            "John User",
			Email:           "user@example.com",
			Password:        string(hash),
			Role:            models.RoleUser,
			Status:          models.StatusActive,
			EmailVerifiedAt: &now,
		},
	}
	return db.Create(&users).Error
}
