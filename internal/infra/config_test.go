package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaultStorageBaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:8080/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigTrimsExplicitStorageBaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/static/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://cdn.example.com/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadConfigSQLiteDoesNotNeedDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "/tmp/storyboard.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SQLitePath != "/tmp/storyboard.db" {
		t.Fatalf("SQLitePath mismatch: %q", cfg.SQLitePath)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadConfigBatchSettings(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("BATCH_IDLE_INTERVAL", "250ms")
	t.Setenv("BATCH_ITEM_DELAY", "2")
	t.Setenv("BATCH_MAX_ATTEMPTS", "1")
	t.Setenv("BATCH_WORKER_EMBEDDED", "false")
	t.Setenv("WORKER_ID", "worker-a")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Batch.IdleInterval != 250*time.Millisecond {
		t.Fatalf("IdleInterval = %s", cfg.Batch.IdleInterval)
	}
	if cfg.Batch.ItemDelay != 2*time.Second {
		t.Fatalf("ItemDelay = %s", cfg.Batch.ItemDelay)
	}
	if cfg.Batch.MaxAttempts != 1 || cfg.Batch.Embedded || cfg.Batch.WorkerID != "worker-a" {
		t.Fatalf("unexpected batch config: %+v", cfg.Batch)
	}
	if cfg.Batch.ItemTimeout != 5*time.Minute {
		t.Fatalf("ItemTimeout default = %s", cfg.Batch.ItemTimeout)
	}
}

func TestLoadConfigRejectsZeroAttempts(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("BATCH_MAX_ATTEMPTS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for BATCH_MAX_ATTEMPTS=0")
	}
}

func TestLoadConfigCORSOrigins(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com ")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins: %#v", cfg.CORSAllowedOrigins)
	}
}
