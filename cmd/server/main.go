package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"tajautos/backend/internal/cache"
	"tajautos/backend/internal/config"
	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/httpapi"
	"tajautos/backend/internal/invoice"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/restock"
	"tajautos/backend/internal/service"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/store/memory"
	pgstore "tajautos/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger.Init("tajautos-backend", cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if cfg.DBAutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Logger.Fatal().Err(err).Msg("schema migration failed")
			}
		}
		if err := seedAccounts(ctx, pg, cfg); err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to seed user accounts")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info(ctx).Str("repository", "postgres").Msg("repository ready")
	} else {
		repo = memory.NewSeeded()
		logger.Info(ctx).Str("repository", "memory").Msg("repository ready")
	}

	cacheStore := cache.RestockCache(cache.NoopRestockCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRestockCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("redis unavailable, restock suggestions will not be cached")
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info(ctx).Str("cache", "redis").Msg("cache ready")
		}
	}

	profile, err := config.LoadShopProfile(cfg.ShopProfilePath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("path", cfg.ShopProfilePath).Msg("failed to load shop profile")
	}
	loc := cfg.Location()
	renderer := invoice.NewRenderer(profile, loc)

	advisor := restock.NewAdvisor(cacheStore, cfg.RestockCacheTTL())
	svc := service.New(repo, advisor,
		service.WithInvoicer(renderer),
		service.WithLocation(loc),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, renderer, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Logger.Info().Str("addr", cfg.Address()).Str("shop", profile.Name).Str("timezone", loc.String()).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Logger.Info().Msg("server stopped")
}

// seedAccounts creates the admin and staff logins on an empty user table.
func seedAccounts(ctx context.Context, users httpapi.UserStore, cfg config.Config) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, seed := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", cfg.SeedAdminPassword, domain.RoleAdmin},
		{"staff", cfg.SeedStaffPassword, domain.RoleStaff},
	} {
		if seed.password == "" {
			logger.Warn(ctx).Str("username", seed.username).Msg("seed password not set, account skipped")
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash %s password: %w", seed.username, err)
		}
		if err := users.CreateUser(ctx, domain.UserAccount{
			Username:  seed.username,
			Password:  string(hash),
			Role:      seed.role,
			Active:    true,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create %s: %w", seed.username, err)
		}
		logger.Info(ctx).Str("username", seed.username).Str("role", seed.role).Msg("seeded user account")
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsDevelopment() {
		return nil
	}
	for _, seed := range []struct {
		env      string
		password string
	}{
		{"SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword},
		{"SEED_STAFF_PASSWORD", cfg.SeedStaffPassword},
	} {
		if seed.password == "" {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("%s must be set outside development", seed.env)
			}
			continue
		}
		if err := validatePasswordStrength(seed.password); err != nil {
			return fmt.Errorf("%s is too weak: %w", seed.env, err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, a single repeated
// character, straight runs like "12345678", and a known-weak list.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("at least 8 characters required")
	}
	known := map[string]bool{
		"admin123": true, "staff123": true, "password": true, "password1": true,
		"12345678": true, "87654321": true, "qwertyui": true, "tajautos": true,
	}
	if known[password] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}

	return nil
}
