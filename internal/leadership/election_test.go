/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/telemetry"
)

func TestNewFailsWithoutRedis(t *testing.T) {
	_, err := New(Config{RedisAddr: "127.0.0.1:1"}, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected error when Redis is unreachable")
	}
}

func TestNewRejectsRetryLongerThanLease(t *testing.T) {
	_, err := New(Config{
		RedisAddr:     "127.0.0.1:1",
		LeaseDuration: time.Second,
		RetryInterval: 2 * time.Second,
	}, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected error for retry interval >= lease")
	}
}

func TestSetLeaderRecordsTransitions(t *testing.T) {
	e := &Election{logger: zerolog.Nop(), cfg: Config{InstanceID: "test-node"}}

	e.setLeader(true)
	e.setLeader(true)
	if !e.IsLeader() {
		t.Fatalf("expected leadership")
	}
	if got := testutil.ToFloat64(telemetry.LeaderStatus.WithLabelValues("test-node")); got != 1 {
		t.Fatalf("status gauge=%v, want 1", got)
	}
	if got := testutil.ToFloat64(telemetry.LeaderChanges.WithLabelValues("test-node", "acquired")); got != 1 {
		t.Fatalf("acquired count=%v, want 1", got)
	}

	e.setLeader(false)
	if e.IsLeader() {
		t.Fatalf("expected leadership to be lost")
	}
	if got := testutil.ToFloat64(telemetry.LeaderStatus.WithLabelValues("test-node")); got != 0 {
		t.Fatalf("status gauge=%v, want 0", got)
	}
}
