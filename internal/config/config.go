package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	DBAutoMigrate          bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RestockCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	SeedAdminPassword      string
	SeedStaffPassword      string
	LogLevel               string
	AppEnv                 string
	ShopTimezone           string
	ShopProfilePath        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("RESTOCK_CACHE_TTL_SECONDS", "60"))
	if err != nil || ttl < 1 {
		ttl = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	autoMigrate, err := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "true"))
	if err != nil {
		autoMigrate = true
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DBAutoMigrate:          autoMigrate,
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		RestockCacheTTLSeconds: ttl,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		SeedAdminPassword:      strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
		SeedStaffPassword:      strings.TrimSpace(os.Getenv("SEED_STAFF_PASSWORD")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		AppEnv:                 getEnv("APP_ENV", "development"),
		ShopTimezone:           getEnv("SHOP_TIMEZONE", "Asia/Karachi"),
		ShopProfilePath:        strings.TrimSpace(os.Getenv("SHOP_PROFILE")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func (c Config) RestockCacheTTL() time.Duration {
	return time.Duration(c.RestockCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves ShopTimezone, falling back to a fixed +05:00 zone when
// the tz database is unavailable.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ShopTimezone)
	if err != nil {
		return time.FixedZone("PKT", 5*60*60)
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
