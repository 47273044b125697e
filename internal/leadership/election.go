/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance among replicas sharing a Redis
// server. Only the leader runs cluster-wide maintenance such as run pruning.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/telemetry"
)

const (
	defaultElectionKey   = "paraspace:leader:maintenance"
	defaultLeaseDuration = 15 * time.Second
	defaultRetryInterval = 2 * time.Second
	releaseTimeout       = 5 * time.Second
	connectTimeout       = 5 * time.Second
)

// releaseScript deletes the lease only when this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lease only when this instance still owns it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Config configures leader election.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ElectionKey   string
	LeaseDuration time.Duration // leader must renew before this expires
	RetryInterval time.Duration // campaign period for leader and followers
	InstanceID    string
}

// Election campaigns for a Redis lease.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    Config

	leader atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to Redis. It fails when Redis is unreachable.
func New(cfg Config, logger zerolog.Logger) (*Election, error) {
	if cfg.ElectionKey == "" {
		cfg.ElectionKey = defaultElectionKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.RetryInterval >= cfg.LeaseDuration {
		return nil, fmt.Errorf("retry interval %s must be shorter than lease %s", cfg.RetryInterval, cfg.LeaseDuration)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger = logger.With().Str("component", "leader_election").Str("instance_id", cfg.InstanceID).Logger()
	logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("connected to Redis for leader election")

	return &Election{client: client, logger: logger, cfg: cfg}, nil
}

// Start campaigns in the background until Stop or ctx cancellation.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.campaign(ctx)
	}()
}

// Stop ends the campaign, releases a held lease and closes the client.
func (e *Election) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
	}
	if e.leader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, e.client, []string{e.cfg.ElectionKey}, e.cfg.InstanceID).Err(); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership lease")
		}
		e.setLeader(false)
	}
	return e.client.Close()
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// InstanceID identifies this campaigner.
func (e *Election) InstanceID() string {
	return e.cfg.InstanceID
}

// Leader returns the instance holding the lease, or "" when there is none.
func (e *Election) Leader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.cfg.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		held, err := e.tryAcquire(ctx)
		if err != nil && ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("leader election round failed")
		}
		e.setLeader(held)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tryAcquire takes a free lease or renews our own.
func (e *Election) tryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.ElectionKey, e.cfg.InstanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, e.client, []string{e.cfg.ElectionKey},
		e.cfg.InstanceID, e.cfg.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) setLeader(held bool) {
	if e.leader.Swap(held) == held {
		return
	}
	id := e.cfg.InstanceID
	if held {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderChanges.WithLabelValues(id, "acquired").Inc()
		return
	}
	e.logger.Warn().Msg("lost leadership")
	telemetry.LeaderStatus.WithLabelValues(id).Set(0)
	telemetry.LeaderChanges.WithLabelValues(id, "lost").Inc()
}
