/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package solver

import (
	"math"
	"sort"

	"github.com/friendsincode/paraspace/internal/grounding"
	"github.com/friendsincode/paraspace/internal/problem"
)

const tolerance = 1e-6

func near(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= tolerance
}

func atMost(a, b float64) bool {
	return a <= b || near(a, b)
}

// Verify checks a plan against the problem: durations, fact bounds, every
// recorded condition edge, per-instant capacity and transition adjacency.
// Any violation is reported as an Internal error.
func Verify(p *problem.Problem, res *Result) error {
	if len(res.Times) != len(res.Tokens) {
		return problem.Errorf(problem.KindInternal, "%d intervals for %d tokens", len(res.Times), len(res.Tokens))
	}
	for id, t := range res.Tokens {
		if err := verifyToken(p, t, res.Times[id]); err != nil {
			return err
		}
	}
	for _, e := range res.Edges {
		if !relationHolds(e.Relation, res.Times[e.From], res.Times[e.To]) {
			return problem.Errorf(problem.KindInternal, "edge %s -%s-> %s violated: %v vs %v",
				res.Tokens[e.From], e.Relation, res.Tokens[e.To], res.Times[e.From], res.Times[e.To])
		}
		if e.Relation == problem.MetByTransitionFrom {
			if err := verifyTransition(res, e); err != nil {
				return err
			}
		}
	}
	return verifyCapacity(p, res)
}

func verifyToken(p *problem.Problem, t grounding.GroundToken, iv Interval) error {
	v, ok := p.Value(t.Timeline, t.Value)
	if !ok {
		return problem.Errorf(problem.KindInternal, "token %s has no value", t)
	}
	if iv.Start < -tolerance || !atMost(iv.Start, iv.End) {
		return problem.Errorf(problem.KindInternal, "token %s has interval %v", t, iv)
	}
	length := iv.End - iv.Start
	if length < float64(v.Duration.Min)-tolerance {
		return problem.Errorf(problem.KindInternal, "token %s shorter than %d", t, v.Duration.Min)
	}
	if max, ok := v.Duration.Max.Value(); ok && length > float64(max)+tolerance {
		return problem.Errorf(problem.KindInternal, "token %s longer than %d", t, max)
	}
	if at, ok := t.Start.Value(); ok && !near(iv.Start, float64(at)) {
		return problem.Errorf(problem.KindInternal, "token %s starts at %g, fact says %d", t, iv.Start, at)
	}
	if at, ok := t.End.Value(); ok && !near(iv.End, float64(at)) {
		return problem.Errorf(problem.KindInternal, "token %s ends at %g, fact says %d", t, iv.End, at)
	}
	return nil
}

// relationHolds evaluates a relation on A (self) and B (target).
func relationHolds(rel problem.Relation, a, b Interval) bool {
	switch rel {
	case problem.MetBy, problem.MetByTransitionFrom:
		return near(b.End, a.Start)
	case problem.Meets:
		return near(a.End, b.Start)
	case problem.Cover:
		return atMost(b.Start, a.Start) && atMost(a.End, b.End)
	case problem.Equal:
		return near(a.Start, b.Start) && near(a.End, b.End)
	case problem.StartsAfter:
		return a.Start > b.Start
	}
	return false
}

func verifyTransition(res *Result, e grounding.Edge) error {
	target := res.Tokens[e.To]
	lo, hi := res.Times[e.To].End, res.Times[e.From].Start
	for id, t := range res.Tokens {
		if t.Timeline != target.Timeline || id == e.To || id == e.From {
			continue
		}
		if s := res.Times[id].Start; s > lo+tolerance && s < hi-tolerance {
			return problem.Errorf(problem.KindInternal, "token %s lies between transition %s and %s", t, target, res.Tokens[e.From])
		}
	}
	return nil
}

// verifyCapacity checks, at every start instant of a timeline, that a single
// value is active and its summed occupancy fits. Zero-length tokens occupy no
// instant and are skipped.
func verifyCapacity(p *problem.Problem, res *Result) error {
	byTimeline := make(map[string][]int)
	for id, t := range res.Tokens {
		if res.Times[id].End-res.Times[id].Start > tolerance {
			byTimeline[t.Timeline] = append(byTimeline[t.Timeline], id)
		}
	}
	names := make([]string, 0, len(byTimeline))
	for name := range byTimeline {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ids := byTimeline[name]
		for _, probe := range ids {
			at := res.Times[probe].Start
			load := make(map[string]int)
			for _, id := range ids {
				iv := res.Times[id]
				if iv.Start <= at+tolerance && at < iv.End-tolerance {
					load[res.Tokens[id].Value] += res.Tokens[id].Occupancy()
				}
			}
			if len(load) > 1 {
				return problem.Errorf(problem.KindInternal, "timeline %s holds %d values at %g", name, len(load), at)
			}
			for value, n := range load {
				v, _ := p.Value(name, value)
				if n > v.Capacity {
					return problem.Errorf(problem.KindInternal, "timeline %s value %s over capacity at %g: %d > %d",
						name, value, at, n, v.Capacity)
				}
			}
		}
	}
	return nil
}
