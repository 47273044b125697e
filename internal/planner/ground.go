/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"github.com/friendsincode/paraspace/internal/grounding"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/solver"
)

// GroundTokenView is a ground token in API form. Bounds use "_" for unbounded.
type GroundTokenView struct {
	ID       int    `json:"id"`
	Timeline string `json:"timeline"`
	Value    string `json:"value"`
	Amount   int    `json:"amount"`
	Load     int    `json:"load"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Goal     bool   `json:"goal"`
	Fact     bool   `json:"fact"`
	Support  bool   `json:"support"`
	Parent   int    `json:"parent"`
}

// EdgeView is a condition edge in API form.
type EdgeView struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Relation string `json:"relation"`
	Amount   int    `json:"amount"`
}

// GroundResponse is the structural expansion preview.
type GroundResponse struct {
	Tokens []GroundTokenView `json:"tokens"`
	Edges  []EdgeView        `json:"edges"`
}

// Ground expands p greedily to a fixpoint. The preview ignores time, so a
// problem that grounds may still be infeasible.
func Ground(p *problem.Problem, limit int) (*GroundResponse, error) {
	if limit == 0 {
		limit = solver.DefaultMaxTokens
	}
	g, err := grounding.Expand(p, limit)
	if err != nil {
		return nil, err
	}

	resp := &GroundResponse{
		Tokens: make([]GroundTokenView, len(g.Tokens)),
		Edges:  make([]EdgeView, len(g.Edges)),
	}
	for i, t := range g.Tokens {
		resp.Tokens[i] = GroundTokenView{
			ID:       t.ID,
			Timeline: t.Timeline,
			Value:    t.Value,
			Amount:   t.Amount,
			Load:     t.Load,
			Start:    t.Start.String(),
			End:      t.End.String(),
			Goal:     t.Goal,
			Fact:     t.Fact,
			Support:  t.IsSupport(),
			Parent:   t.Parent,
		}
	}
	for i, e := range g.Edges {
		resp.Edges[i] = EdgeView{From: e.From, To: e.To, Relation: string(e.Relation), Amount: e.Amount}
	}
	return resp, nil
}
