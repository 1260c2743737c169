package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	t.Setenv("SEED_STAFF_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedAdminPassword != "" || cfg.SeedStaffPassword != "" {
		t.Fatalf("expected empty seed passwords when unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_AUTO_MIGRATE", "RESTOCK_CACHE_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "SHOP_TIMEZONE", "APP_ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if !cfg.DBAutoMigrate {
		t.Fatalf("expected auto migrate on by default")
	}
	if cfg.RestockCacheTTL() != 60*time.Second || cfg.AccessTokenTTL() != 480*time.Minute {
		t.Fatalf("unexpected ttls: restock=%v token=%v", cfg.RestockCacheTTL(), cfg.AccessTokenTTL())
	}
	if cfg.ShopTimezone != "Asia/Karachi" {
		t.Fatalf("expected Asia/Karachi, got %q", cfg.ShopTimezone)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development environment by default")
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("RESTOCK_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := Load()
	if cfg.RestockCacheTTLSeconds != 60 || cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback ttls 60/480, got %d/%d", cfg.RestockCacheTTLSeconds, cfg.AccessTokenTTLMinutes)
	}
	if cfg.DBAutoMigrate {
		t.Fatalf("expected DB_AUTO_MIGRATE=false to be honoured")
	}
}

func TestLocationFallsBackToFixedZone(t *testing.T) {
	cfg := Config{ShopTimezone: "Not/AZone"}
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone()
	if offset != 5*60*60 {
		t.Fatalf("expected +05:00 fallback, got offset %d", offset)
	}
}

func TestLoadShopProfileDefaults(t *testing.T) {
	profile, err := LoadShopProfile("")
	if err != nil {
		t.Fatalf("load default profile: %v", err)
	}
	if profile.Name != "Taj Autos" || profile.CurrencyPrefix != "Rs." {
		t.Fatalf("unexpected default profile %+v", profile)
	}
	if !strings.Contains(profile.AddressLine1, "Meri Ruby Plaza") {
		t.Fatalf("expected plaza address, got %q", profile.AddressLine1)
	}
}

func TestLoadShopProfileOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	if err := os.WriteFile(path, []byte("name: Taj Autos Branch 2\nphone: \"021-5555555\"\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	profile, err := LoadShopProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.Name != "Taj Autos Branch 2" || profile.Phone != "021-5555555" {
		t.Fatalf("expected overrides to apply, got %+v", profile)
	}
	if profile.City != "Karachi" {
		t.Fatalf("expected default city to remain, got %q", profile.City)
	}
}

func TestLoadShopProfileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	if err := os.WriteFile(path, []byte("name: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	if _, err := LoadShopProfile(path); err == nil {
		t.Fatalf("expected malformed yaml to be rejected")
	}
}
