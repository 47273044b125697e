/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache keeps solve outcomes in Redis, keyed by problem fingerprint.
//
// Solving is deterministic, so a fingerprint fully determines the outcome.
// Entries record either the solution or the error kind. Redis errors open a
// breaker for Cooldown; the planner keeps solving uncached meanwhile.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/wire"
)

const (
	// DefaultSolveTTL is how long a solve outcome stays cached.
	DefaultSolveTTL = 30 * time.Minute
	// DefaultCooldown is how long the cache stays off after a Redis error.
	DefaultCooldown = time.Minute

	solveKeyPrefix = "paraspace:cache:solve:"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SolveTTL time.Duration
	Cooldown time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr: "localhost:6379",
		SolveTTL:  DefaultSolveTTL,
		Cooldown:  DefaultCooldown,
	}
}

// Outcome is a cached solve result. Exactly one of Solution and ErrorKind is set.
type Outcome struct {
	Solution     *wire.SolutionDoc `json:"solution,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
	Nodes        int               `json:"nodes"`
	GroundTokens int               `json:"ground_tokens"`
}

// Failed reports whether the outcome records a solve error.
func (o Outcome) Failed() bool { return o.ErrorKind != "" }

// Cache stores solve outcomes. A nil client means caching is off for good.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	openUntil time.Time
}

// Disabled returns a cache that never stores anything.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		cfg:    DefaultConfig(),
		now:    time.Now,
	}
}

// New connects to Redis. An unreachable server yields a disabled cache, not
// an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.SolveTTL <= 0 {
		cfg.SolveTTL = DefaultSolveTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	c := Disabled(logger)
	c.cfg = cfg

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		c.logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, solve cache disabled")
		return c, nil
	}

	c.client = client
	c.logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.SolveTTL).Msg("solve cache ready")
	return c, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable reports whether lookups currently reach Redis.
func (c *Cache) IsAvailable() bool {
	if c.client == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.now().Before(c.openUntil)
}

func (c *Cache) trip(op string, err error) {
	c.mu.Lock()
	c.openUntil = c.now().Add(c.cfg.Cooldown)
	c.mu.Unlock()
	c.logger.Warn().Err(err).Str("operation", op).Dur("cooldown", c.cfg.Cooldown).Msg("redis error, pausing solve cache")
}

// GetSolve retrieves the cached outcome for a problem fingerprint.
func (c *Cache) GetSolve(ctx context.Context, fingerprint string) (*Outcome, bool) {
	if !c.IsAvailable() {
		return nil, false
	}
	data, err := c.client.Get(ctx, solveKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.trip("get", err)
		return nil, false
	}

	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Debug().Err(err).Str("fingerprint", fingerprint).Msg("discarding unreadable cache entry")
		return nil, false
	}
	return &out, true
}

// SetSolve caches the outcome for a problem fingerprint.
func (c *Cache) SetSolve(ctx context.Context, fingerprint string, out Outcome) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := c.client.Set(ctx, solveKeyPrefix+fingerprint, data, c.cfg.SolveTTL).Err(); err != nil {
		c.trip("set", err)
		return err
	}
	return nil
}
