package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/diewo77/go-messages/internal/auth"
	"github.com/diewo77/go-messages/internal/config"
	"github.com/diewo77/go-messages/internal/db"
	"github.com/diewo77/go-messages/internal/server"
	"github.com/diewo77/go-messages/internal/token"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedFlag        = flag.Bool("seed", false, "Seed the well-known accounts after migrating")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbConn, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(dbConn); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}
	if *migrateOnlyFlag {
		log.Info("migrations completed; exiting as requested")
		return
	}
	if *seedFlag {
		if err := db.Seed(dbConn); err != nil {
			log.Error("seed failed", "err", err)
			os.Exit(1)
		}
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.Env != "development" {
			log.Error("JWT_SECRET is required outside development")
			os.Exit(1)
		}
		secret = "dev-only-insecure-secret"
		log.Warn("JWT_SECRET not set, using insecure development secret")
	}

	var blocklist token.Blocklist
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Error("redis ping failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		blocklist = token.NewRedisBlocklist(rdb, "")
		log.Info("token revocations backed by redis", "addr", cfg.RedisAddr)
	} else {
		blocklist = token.NewMemoryBlocklist()
		log.Warn("REDIS_ADDR not set, token revocations are process-local")
	}

	tokens, err := token.NewService(token.Config{
		Secret:       []byte(secret),
		TTL:          cfg.JWTTTL,
		RefreshGrace: cfg.JWTRefreshGrace,
	}, blocklist)
	if err != nil {
		log.Error("token service init failed", "err", err)
		os.Exit(1)
	}
	authSvc := auth.NewService(dbConn, tokens)
	google := &auth.GoogleProvider{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}
	if !google.Configured() {
		log.Warn("google oauth not configured, social login will fail at the exchange")
	}

	handler := server.New(server.Options{
		DB:           dbConn,
		Tokens:       tokens,
		Auth:         authSvc,
		Google:       google,
		HomeURL:      cfg.AppHomeURL,
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	log.Info("server stopped")
}
