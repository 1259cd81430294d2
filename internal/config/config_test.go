package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"RECEIPTD_ENV", "RECEIPTD_HTTP_ADDR", "RECEIPTD_HTTP_READ_TIMEOUT", "RECEIPTD_HTTP_WRITE_TIMEOUT",
	"RECEIPTD_HTTP_IDLE_TIMEOUT", "RECEIPTD_LOG_LEVEL", "RECEIPTD_STORAGE_BACKEND", "RECEIPTD_DATA_DIR",
	"RECEIPTD_SQLITE_PATH", "RECEIPTD_REDIS_ADDR", "RECEIPTD_REDIS_PASSWORD", "RECEIPTD_REDIS_DB",
	"RECEIPTD_REDIS_PREFIX", "RECEIPTD_NODE_KEY_PATH", "RECEIPTD_REQUIRE_SIGNATURE", "RECEIPTD_NONCE_WINDOW",
	"RECEIPTD_EVENTS_REDIS_CHANNEL", "RECEIPTD_EVENTS_BUFFER",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	clearConfigEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a named config file that does not exist")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Binding.NonceWindow != 5*time.Minute {
		t.Fatalf("nonce window=%s", cfg.Binding.NonceWindow)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("backend=%q", cfg.Storage.Backend)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8081" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http:
  addr: ":9000"
  read_timeout: 3s
storage:
  backend: sqlite
  sqlite_path: /tmp/r.db
binding:
  require_signature: true
  pubkey_by_caller:
    alice: AAAA
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("RECEIPTD_HTTP_ADDR", ":9100")
	t.Setenv("RECEIPTD_REDIS_DB", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("env did not override addr: %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ReadTimeout != 3*time.Second {
		t.Fatalf("read_timeout=%v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "/tmp/r.db" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if !cfg.Binding.RequireSignature || cfg.Binding.PubKeyByCaller["alice"] != "AAAA" {
		t.Fatalf("binding=%+v", cfg.Binding)
	}
	if cfg.Storage.Redis.DB != 3 {
		t.Fatalf("redis db=%d", cfg.Storage.Redis.DB)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level default lost: %q", cfg.Log.Level)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RECEIPTD_STORAGE_BACKEND", "etcd")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RECEIPTD_HTTP_IDLE_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
