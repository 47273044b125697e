/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLeader struct{ held atomic.Bool }

func (f *fakeLeader) IsLeader() bool { return f.held.Load() }

func TestRunMaintenance_OnlyLeaderPrunes(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.Solve(context.Background(), SolveRequest{Problem: goalDoc()}); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	svc.now = func() time.Time { return base.Add(48 * time.Hour) }

	leader := &fakeLeader{}
	svc.SetLeader(leader)

	runFor := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := svc.RunMaintenance(ctx, 10*time.Millisecond, 24*time.Hour); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("RunMaintenance returned %v", err)
		}
	}

	runFor()
	if _, total, err := svc.List(context.Background(), ListParams{}); err != nil || total != 1 {
		t.Fatalf("follower pruned runs: total=%d err=%v", total, err)
	}

	leader.held.Store(true)
	runFor()
	if _, total, err := svc.List(context.Background(), ListParams{}); err != nil || total != 0 {
		t.Fatalf("leader kept runs: total=%d err=%v", total, err)
	}
}

func TestRunMaintenance_ZeroRetentionReturns(t *testing.T) {
	svc := newTestService(t)
	if err := svc.RunMaintenance(context.Background(), time.Millisecond, 0); err != nil {
		t.Fatalf("expected immediate nil return, got %v", err)
	}
}
