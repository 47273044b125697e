package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected db backend: %q", cfg.DBBackend)
	}
	if cfg.SolveDeadline != 30*time.Second {
		t.Fatalf("unexpected solve deadline: %v", cfg.SolveDeadline)
	}
	if cfg.AuthEnabled() {
		t.Fatal("auth should be disabled without a signing key")
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr: %q", cfg.Addr())
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("PARASPACE_DB_BACKEND", "postgres")
	t.Setenv("PARASPACE_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("PARASPACE_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("PARASPACE_SOLVE_DEADLINE_MS", "1500")
	t.Setenv("PARASPACE_BATCH_WORKERS", "8")
	t.Setenv("PARASPACE_CACHE_ENABLED", "yes")
	t.Setenv("PARASPACE_EVENT_BACKEND", "nats")
	t.Setenv("PARASPACE_LEADER_ELECTION", "true")
	t.Setenv("PARASPACE_INSTANCE_ID", "node-a")
	t.Setenv("PARASPACE_MAX_BODY_KB", "64")
	t.Setenv("AWS_REGION", "eu-north-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabasePostgres {
		t.Fatalf("unexpected db backend: %q", cfg.DBBackend)
	}
	if cfg.SolveDeadline != 1500*time.Millisecond {
		t.Fatalf("unexpected solve deadline: %v", cfg.SolveDeadline)
	}
	if cfg.BatchWorkers != 8 || !cfg.CacheEnabled || cfg.EventBackend != EventNATS {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.LeaderElection || cfg.InstanceID != "node-a" || cfg.MaxBodyBytes != 64*1024 {
		t.Fatalf("unexpected cluster settings: %+v", cfg)
	}
	if cfg.S3Region != "eu-north-1" {
		t.Fatalf("expected AWS_REGION fallback, got %q", cfg.S3Region)
	}
	if !cfg.AuthEnabled() {
		t.Fatal("auth should be enabled with a signing key")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"db backend", "PARASPACE_DB_BACKEND", "oracle"},
		{"port", "PARASPACE_HTTP_PORT", "70000"},
		{"deadline", "PARASPACE_SOLVE_DEADLINE_MS", "0"},
		{"workers", "PARASPACE_BATCH_WORKERS", "0"},
		{"max tokens", "PARASPACE_MAX_TOKENS", "0"},
		{"retention", "PARASPACE_RUN_RETENTION_HOURS", "-1"},
		{"event backend", "PARASPACE_EVENT_BACKEND", "kafka"},
		{"archive backend", "PARASPACE_ARCHIVE_BACKEND", "ftp"},
		{"archive s3 without bucket", "PARASPACE_ARCHIVE_BACKEND", "s3"},
		{"sample rate", "PARASPACE_TRACING_SAMPLE_RATE", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tc.key, tc.val)
			}
		})
	}
}

func TestLoadProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("PARASPACE_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a signing key")
	}

	t.Setenv("PARASPACE_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config with signing key to load: %v", err)
	}
}
