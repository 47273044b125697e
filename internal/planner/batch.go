/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/paraspace/internal/events"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/telemetry"
)

// BatchItem is the result of one problem of a batch. Either Response is set
// or ErrorKind describes why no run was recorded.
type BatchItem struct {
	Index     int            `json:"index"`
	Response  *SolveResponse `json:"response,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BatchResponse lists batch items in request order.
type BatchResponse struct {
	Items  []BatchItem `json:"items"`
	Solved int         `json:"solved"`
	Failed int         `json:"failed"`
}

// SolveBatch solves independent problems with bounded parallelism. One
// problem failing does not affect the others.
func (s *Service) SolveBatch(ctx context.Context, reqs []SolveRequest) (*BatchResponse, error) {
	started := time.Now()
	items := make([]BatchItem, len(reqs))
	ctx, span := telemetry.StartBatchSpan(ctx, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchWorkers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			item := BatchItem{Index: i}
			resp, err := s.Solve(ctx, req)
			if err != nil {
				kind := problem.KindOf(err)
				if kind == "" {
					kind = problem.KindInternal
				}
				item.ErrorKind = string(kind)
				item.Error = err.Error()
			} else {
				item.Response = resp
				item.ErrorKind = resp.ErrorKind
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResponse{Items: items}
	for _, it := range items {
		if it.ErrorKind == "" {
			out.Solved++
		} else {
			out.Failed++
		}
	}

	telemetry.EndBatchSpan(span, out.Solved, out.Failed)

	s.bus.Publish(events.EventBatchCompleted, events.Payload{
		"problems":    len(reqs),
		"solved":      out.Solved,
		"failed":      out.Failed,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	s.logger.Info().Int("problems", len(reqs)).Int("solved", out.Solved).Int("failed", out.Failed).Msg("batch completed")

	return out, ctx.Err()
}
