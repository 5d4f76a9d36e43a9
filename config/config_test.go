package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	setEnv(t, "SESSION_JWT_SECRET", "test-secret")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadRequiresSessionSecret(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/memberships?parseTime=true")
	unsetEnv(t, "SESSION_JWT_SECRET")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing SESSION_JWT_SECRET")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/memberships?parseTime=true")
	setEnv(t, "SESSION_JWT_SECRET", "test-secret")
	setEnv(t, "APP_SERVICE_NAME", "memberships-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "MEMBERSHIPS_GOLD_PRICE_CENTS", "1299")
	setEnv(t, "MEMBERSHIPS_PENDING_TIMEOUT_MINUTES", "11")
	setEnv(t, "MEMBERSHIPS_RECONCILE_STALE_AFTER_MINUTES", "13")
	setEnv(t, "MEMBERSHIPS_JOB_BATCH_SIZE", "99")
	setEnv(t, "SESSION_TOKEN_TTL_MINUTES", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "memberships-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" {
		t.Fatalf("unexpected http port: %s", cfg.HTTP.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if cfg.Memberships.GoldPriceCents != 1299 {
		t.Fatalf("unexpected gold price: %d", cfg.Memberships.GoldPriceCents)
	}
	if cfg.Memberships.DiamondPriceCents != 1999 {
		t.Fatalf("expected default diamond price, got %d", cfg.Memberships.DiamondPriceCents)
	}
	if cfg.Memberships.PendingTimeout != 11*time.Minute {
		t.Fatalf("unexpected pending timeout: %v", cfg.Memberships.PendingTimeout)
	}
	if cfg.Memberships.ReconcileStaleAfter != 13*time.Minute {
		t.Fatalf("unexpected reconcile stale after: %v", cfg.Memberships.ReconcileStaleAfter)
	}
	if cfg.Memberships.JobBatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Memberships.JobBatchSize)
	}
	if cfg.Session.TokenTTL != 90*time.Minute {
		t.Fatalf("unexpected session ttl: %v", cfg.Session.TokenTTL)
	}
}
