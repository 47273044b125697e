/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"time"

	"github.com/friendsincode/paraspace/internal/models"
)

// RunMaintenance prunes finished runs older than retention until ctx is
// cancelled. A zero retention keeps runs forever and returns immediately.
// With a Leader set, only the leading instance prunes.
func (s *Service) RunMaintenance(ctx context.Context, interval, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("retention", retention).Msg("run maintenance started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("run maintenance stopped")
			return ctx.Err()
		case <-ticker.C:
			if s.leader != nil && !s.leader.IsLeader() {
				continue
			}
			if _, err := s.PruneRuns(ctx, retention); err != nil {
				s.logger.Warn().Err(err).Msg("failed to prune old runs")
			}
		}
	}
}

// PruneRuns deletes finished runs created before now - retention.
func (s *Service) PruneRuns(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("created_at < ? AND status <> ?", cutoff, models.RunPending).
		Delete(&models.SolveRun{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.logger.Info().Int64("deleted", result.RowsAffected).Msg("pruned old solve runs")
	}
	return result.RowsAffected, nil
}
