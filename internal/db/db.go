// Package db opens the database, keeps the schema current and seeds the
// well-known accounts.
package db

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-messages/internal/models"
)

// Connect opens the database named by dsn: postgres for URL or key=value
// DSNs (with a retry loop, the container may still be starting), sqlite for
// anything else.
func Connect(dsn string) (*gorm.DB, error) {
	dsn = NormalizeDSN(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty database DSN")
	}
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	if isPostgres(dsn) {
		var db *gorm.DB
		var err error
		for i := 0; i < 10; i++ {
			db, err = gorm.Open(postgres.Open(dsn), cfg)
			if err == nil {
				break
			}
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			return nil, fmt.Errorf("connect postgres after retries: %w", err)
		}
		if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
			return nil, fmt.Errorf("db ping: %w", pingErr)
		}
		return db, nil
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// NormalizeDSN trims quotes and whitespace and, for key=value postgres DSNs,
// defaults sslmode=disable when absent. URL DSNs and sqlite paths pass
// through untouched.
func NormalizeDSN(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'")
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return s
	}
	if !strings.Contains(lower, "host=") {
		// sqlite file path or :memory:
		return s
	}
	cleaned := strings.Join(strings.Fields(s), " ")
	if !strings.Contains(strings.ToLower(cleaned), "sslmode=") {
		cleaned += " sslmode=disable"
	}
	return cleaned
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Migrate creates or updates the schema for the models this API owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Message{})
}
