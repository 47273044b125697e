/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBackend string

const (
	EventMemory EventBackend = "memory"
	EventRedis  EventBackend = "redis"
	EventNATS   EventBackend = "nats"
)

// Archive backend selection for solved plans.
type ArchiveBackend string

const (
	ArchiveNone ArchiveBackend = "none"
	ArchiveFS   ArchiveBackend = "fs"
	ArchiveS3   ArchiveBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	// Solver limits
	SolveDeadline time.Duration
	MaxTokens     int
	BatchWorkers  int
	MaxBodyBytes  int64
	RunRetention  time.Duration // 0 keeps runs forever

	// Redis, shared by the cache and the redis event backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool
	CacheTTL      time.Duration

	EventBackend EventBackend
	NATSURL      string
	InstanceID   string

	// Redis lease so only one replica prunes runs
	LeaderElection bool

	// Empty disables authentication.
	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	ArchiveBackend ArchiveBackend
	ArchiveDir     string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("PARASPACE_ENV", "development"),
		HTTPBind:    getEnv("PARASPACE_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("PARASPACE_HTTP_PORT", 8080),
		DBBackend:   DatabaseBackend(getEnv("PARASPACE_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("PARASPACE_DB_DSN", "paraspace.db"),

		SolveDeadline: time.Duration(getEnvInt("PARASPACE_SOLVE_DEADLINE_MS", 30000)) * time.Millisecond,
		MaxTokens:     getEnvInt("PARASPACE_MAX_TOKENS", 256),
		BatchWorkers:  getEnvInt("PARASPACE_BATCH_WORKERS", 4),
		MaxBodyBytes:  int64(getEnvInt("PARASPACE_MAX_BODY_KB", 1024)) * 1024,
		RunRetention:  time.Duration(getEnvInt("PARASPACE_RUN_RETENTION_HOURS", 0)) * time.Hour,

		RedisAddr:     getEnv("PARASPACE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("PARASPACE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("PARASPACE_REDIS_DB", 0),
		CacheEnabled:  getEnvBool("PARASPACE_CACHE_ENABLED", false),
		CacheTTL:      time.Duration(getEnvInt("PARASPACE_CACHE_TTL_MINUTES", 30)) * time.Minute,

		EventBackend: EventBackend(getEnv("PARASPACE_EVENT_BACKEND", string(EventMemory))),
		NATSURL:      getEnv("PARASPACE_NATS_URL", "nats://127.0.0.1:4222"),
		InstanceID:   getEnv("PARASPACE_INSTANCE_ID", ""),

		LeaderElection: getEnvBool("PARASPACE_LEADER_ELECTION", false),

		JWTSigningKey: getEnv("PARASPACE_JWT_SIGNING_KEY", ""),

		TracingEnabled:    getEnvBool("PARASPACE_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("PARASPACE_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("PARASPACE_TRACING_SAMPLE_RATE", 1.0),

		ArchiveBackend: ArchiveBackend(getEnv("PARASPACE_ARCHIVE_BACKEND", string(ArchiveNone))),
		ArchiveDir:     getEnv("PARASPACE_ARCHIVE_DIR", "./archive"),

		S3AccessKeyID:     getEnvAny([]string{"PARASPACE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"PARASPACE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"PARASPACE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"PARASPACE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"PARASPACE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"PARASPACE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and backend names.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("PARASPACE_DB_DSN must be provided")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid PARASPACE_HTTP_PORT %d", c.HTTPPort)
	}
	if c.SolveDeadline <= 0 {
		return fmt.Errorf("PARASPACE_SOLVE_DEADLINE_MS must be positive")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("PARASPACE_BATCH_WORKERS must be at least 1")
	}
	if c.RunRetention < 0 {
		return fmt.Errorf("PARASPACE_RUN_RETENTION_HOURS must not be negative")
	}
	if c.MaxTokens == 0 {
		return fmt.Errorf("PARASPACE_MAX_TOKENS must be non-zero (negative disables the limit)")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("PARASPACE_TRACING_SAMPLE_RATE must be within [0, 1]")
	}

	switch c.EventBackend {
	case EventMemory, EventRedis, EventNATS:
	default:
		return fmt.Errorf("unsupported event backend %q", c.EventBackend)
	}

	if c.LeaderElection && c.RedisAddr == "" {
		return fmt.Errorf("PARASPACE_REDIS_ADDR is required for leader election")
	}

	switch c.ArchiveBackend {
	case ArchiveNone, ArchiveFS:
	case ArchiveS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("PARASPACE_S3_BUCKET is required for the s3 archive backend")
		}
	default:
		return fmt.Errorf("unsupported archive backend %q", c.ArchiveBackend)
	}

	if strings.EqualFold(c.Environment, "production") && c.JWTSigningKey == "" {
		return fmt.Errorf("PARASPACE_JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// AuthEnabled reports whether API requests require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSigningKey != ""
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	return getEnvBoolAny([]string{key}, def)
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
