/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package grounding turns a problem into ground tokens bound to concrete
// timelines, plus the condition edges between them.
package grounding

import (
	"fmt"
	"slices"

	"github.com/friendsincode/paraspace/internal/problem"
)

// GroundToken is a token occurrence on a concrete timeline.
type GroundToken struct {
	ID       int
	Timeline string
	Value    string
	Amount   int // capacity consumed by the token itself
	Load     int // capacity drawn by the conditions it supports
	Start    problem.Bound
	End      problem.Bound
	Goal     bool
	Fact     bool
	Source   int // index of the problem token, -1 for supports
	Parent   int // token whose condition created it, -1 for seeds
}

// Occupancy is the capacity the token holds on its value.
func (t GroundToken) Occupancy() int {
	return max(t.Amount, t.Load)
}

// IsSupport reports whether the token was created during expansion.
func (t GroundToken) IsSupport() bool {
	return t.Source < 0
}

func (t GroundToken) String() string {
	return fmt.Sprintf("#%d %s.%s", t.ID, t.Timeline, t.Value)
}

// Edge records that condition From -Relation-> To must hold.
type Edge struct {
	From     int
	To       int
	Relation problem.Relation
	Amount   int
}

// Request is an unresolved condition of a ground token. Members holds the
// concrete timelines that may host the support.
type Request struct {
	Token     int
	Condition problem.Condition
	Members   []string
}

// OptionKind distinguishes reusing a token from creating one.
type OptionKind int

const (
	Reuse OptionKind = iota
	Create
)

// Option is one way to satisfy a request.
type Option struct {
	Kind     OptionKind
	Token    int    // reused token
	Timeline string // host of a created token
}

func (o Option) String() string {
	if o.Kind == Reuse {
		return fmt.Sprintf("reuse #%d", o.Token)
	}
	return "create on " + o.Timeline
}

// Graph is the ground token set under construction. Pending requests are
// resolved in FIFO order.
type Graph struct {
	Tokens  []GroundToken
	Edges   []Edge
	Pending []Request
}

// Seed grounds the problem's own tokens. Each queues its value's conditions
// followed by the conditions listed on the token itself.
func Seed(p *problem.Problem) *Graph {
	g := &Graph{}
	for i, tok := range p.Tokens() {
		gt := GroundToken{
			ID:       len(g.Tokens),
			Timeline: tok.Timeline,
			Value:    tok.Value,
			Amount:   tok.Capacity,
			Source:   i,
			Parent:   -1,
		}
		switch t := tok.Time.(type) {
		case problem.FactTime:
			gt.Fact = true
			gt.Start, gt.End = t.Start, t.End
		default:
			gt.Goal = true
		}
		g.Tokens = append(g.Tokens, gt)

		v, _ := p.Value(tok.Timeline, tok.Value)
		g.enqueue(p, gt.ID, v.Conditions)
		g.enqueue(p, gt.ID, tok.Conditions)
	}
	return g
}

func (g *Graph) enqueue(p *problem.Problem, id int, conds []problem.Condition) {
	for _, c := range conds {
		g.Pending = append(g.Pending, Request{Token: id, Condition: c, Members: p.Members(c.Object)})
	}
}

// Clone returns a copy that can be extended independently.
func (g *Graph) Clone() *Graph {
	return &Graph{
		Tokens:  slices.Clone(g.Tokens),
		Edges:   slices.Clone(g.Edges),
		Pending: slices.Clone(g.Pending),
	}
}

// Next pops the oldest pending request.
func (g *Graph) Next() (Request, bool) {
	if len(g.Pending) == 0 {
		return Request{}, false
	}
	req := g.Pending[0]
	g.Pending = g.Pending[1:]
	return req, true
}

// Derives reports whether timeline.value occurs on the derivation chain
// ending at token id.
func (g *Graph) Derives(id int, timeline, value string) bool {
	for id >= 0 {
		t := g.Tokens[id]
		if t.Timeline == timeline && t.Value == value {
			return true
		}
		id = t.Parent
	}
	return false
}

// Options lists the ways to satisfy req: reusing an existing token with
// enough spare capacity, in creation order, then creating a support on each
// member timeline in name order. Creation is refused when the same
// timeline.value is already on the request's derivation chain, or when the
// graph holds limit tokens (limit <= 0 means no limit); refused reports
// whether that happened.
func (g *Graph) Options(p *problem.Problem, req Request, limit int) (opts []Option, refused bool) {
	c := req.Condition
	for _, t := range g.Tokens {
		if t.ID == req.Token || t.Value != c.Value || !slices.Contains(req.Members, t.Timeline) {
			continue
		}
		v, _ := p.Value(t.Timeline, t.Value)
		if max(t.Amount, t.Load+c.Amount) > v.Capacity {
			continue
		}
		opts = append(opts, Option{Kind: Reuse, Token: t.ID})
	}
	for _, tl := range req.Members {
		v, _ := p.Value(tl, c.Value)
		if c.Amount > v.Capacity {
			continue
		}
		if g.Derives(req.Token, tl, c.Value) || (limit > 0 && len(g.Tokens) >= limit) {
			refused = true
			continue
		}
		opts = append(opts, Option{Kind: Create, Timeline: tl})
	}
	return opts, refused
}

// Apply resolves req with opt, records the edge and returns the support's id.
// A created support queues its own value's conditions.
func (g *Graph) Apply(p *problem.Problem, req Request, opt Option) (int, error) {
	c := req.Condition
	target := opt.Token
	switch opt.Kind {
	case Reuse:
		if target < 0 || target >= len(g.Tokens) {
			return 0, problem.Errorf(problem.KindInternal, "reuse of unknown token %d", target)
		}
		g.Tokens[target].Load += c.Amount
	case Create:
		v, ok := p.Value(opt.Timeline, c.Value)
		if !ok {
			return 0, problem.Errorf(problem.KindInternal, "no value %s on %s", c.Value, opt.Timeline)
		}
		target = len(g.Tokens)
		g.Tokens = append(g.Tokens, GroundToken{
			ID:       target,
			Timeline: opt.Timeline,
			Value:    c.Value,
			Load:     c.Amount,
			Source:   -1,
			Parent:   req.Token,
		})
		g.enqueue(p, target, v.Conditions)
	default:
		return 0, problem.Errorf(problem.KindInternal, "unknown option kind %d", opt.Kind)
	}
	g.Edges = append(g.Edges, Edge{From: req.Token, To: target, Relation: c.Relation, Amount: c.Amount})
	return target, nil
}

// OnTimeline returns the ids of tokens hosted by timeline, in creation order.
func (g *Graph) OnTimeline(timeline string) []int {
	var ids []int
	for _, t := range g.Tokens {
		if t.Timeline == timeline {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Expand runs the expansion to a fixpoint greedily, always taking the first
// option. It ignores time, so the result is a structural preview and may not
// be schedulable. It fails with Unbounded when creation had to be refused and
// no alternative remained.
func Expand(p *problem.Problem, limit int) (*Graph, error) {
	g := Seed(p)
	for {
		req, ok := g.Next()
		if !ok {
			return g, nil
		}
		opts, refused := g.Options(p, req, limit)
		if len(opts) == 0 {
			entity := g.Tokens[req.Token].String()
			if refused {
				return nil, &problem.Error{Kind: problem.KindUnbounded, Entity: entity,
					Reason: fmt.Sprintf("expansion of %s does not reach a fixpoint", req.Condition.Value)}
			}
			return nil, &problem.Error{Kind: problem.KindInfeasible, Entity: entity,
				Reason: fmt.Sprintf("no capacity left for %s", req.Condition.Value)}
		}
		if _, err := g.Apply(p, req, opts[0]); err != nil {
			return nil, err
		}
	}
}
