/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package problem

import (
	"fmt"
	"sort"
)

// Problem is a validated, immutable planning problem.
type Problem struct {
	timelines []Timeline
	groups    []Group
	tokens    []Token

	timelineIdx map[string]int
	valueIdx    map[string]map[string]int
	members     map[string][]string // group or timeline name -> concrete timelines
}

// MakeProblem copies and validates its input. Every failure is a
// MalformedProblem error naming the offending entity.
func MakeProblem(timelines []Timeline, groups []Group, tokens []Token) (*Problem, error) {
	p := &Problem{
		timelines:   make([]Timeline, len(timelines)),
		groups:      make([]Group, len(groups)),
		tokens:      make([]Token, len(tokens)),
		timelineIdx: make(map[string]int, len(timelines)),
		valueIdx:    make(map[string]map[string]int, len(timelines)),
		members:     make(map[string][]string),
	}
	for i, tl := range timelines {
		p.timelines[i] = cloneTimeline(tl)
	}
	for i, g := range groups {
		g.Members = append([]string(nil), g.Members...)
		p.groups[i] = g
	}
	for i, tok := range tokens {
		tok.Conditions = cloneConditions(tok.Conditions)
		if tok.Time == nil {
			tok.Time = Goal()
		}
		p.tokens[i] = tok
	}

	if err := p.indexTimelines(); err != nil {
		return nil, err
	}
	if err := p.resolveGroups(); err != nil {
		return nil, err
	}
	for _, tl := range p.timelines {
		for _, v := range tl.Values {
			entity := tl.Name + "." + v.Name
			for _, c := range v.Conditions {
				if err := p.checkCondition(entity, c); err != nil {
					return nil, err
				}
			}
		}
	}
	for i, tok := range p.tokens {
		if err := p.checkToken(i, tok); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Problem) indexTimelines() error {
	for i, tl := range p.timelines {
		if tl.Name == "" {
			return Malformed(fmt.Sprintf("timeline #%d", i), "empty timeline name")
		}
		if _, dup := p.timelineIdx[tl.Name]; dup {
			return Malformed(tl.Name, "duplicate timeline name")
		}
		p.timelineIdx[tl.Name] = i

		values := make(map[string]int, len(tl.Values))
		for j, v := range tl.Values {
			entity := tl.Name + "." + v.Name
			if v.Name == "" {
				return Malformed(tl.Name, "value #%d has an empty name", j)
			}
			if _, dup := values[v.Name]; dup {
				return Malformed(entity, "duplicate value name")
			}
			if v.Duration.Min < 0 {
				return Malformed(entity, "negative minimum duration %d", v.Duration.Min)
			}
			if max, ok := v.Duration.Max.Value(); ok && max < v.Duration.Min {
				return Malformed(entity, "maximum duration %d below minimum %d", max, v.Duration.Min)
			}
			if v.Capacity < 1 {
				return Malformed(entity, "capacity must be at least 1, got %d", v.Capacity)
			}
			values[v.Name] = j
		}
		p.valueIdx[tl.Name] = values
	}
	return nil
}

// resolveGroups validates the group graph and caches the concrete timelines
// of every group. Groups must form a DAG.
func (p *Problem) resolveGroups() error {
	byName := make(map[string]Group, len(p.groups))
	for _, g := range p.groups {
		if g.Name == "" {
			return Malformed("group", "empty group name")
		}
		if _, clash := p.timelineIdx[g.Name]; clash {
			return Malformed(g.Name, "group name collides with a timeline")
		}
		if _, dup := byName[g.Name]; dup {
			return Malformed(g.Name, "duplicate group name")
		}
		byName[g.Name] = g
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(byName))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return Malformed(name, "cyclic group reference %v", append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		set := make(map[string]struct{})
		for _, m := range byName[name].Members {
			if _, ok := p.timelineIdx[m]; ok {
				set[m] = struct{}{}
				continue
			}
			if _, ok := byName[m]; !ok {
				return Malformed(name, "unknown member %q", m)
			}
			if err := visit(m, append(path, name)); err != nil {
				return err
			}
			for _, tl := range p.members[m] {
				set[tl] = struct{}{}
			}
		}
		p.members[name] = sortedKeys(set)
		state[name] = done
		return nil
	}

	for _, g := range p.groups {
		if err := visit(g.Name, nil); err != nil {
			return err
		}
	}
	for _, tl := range p.timelines {
		p.members[tl.Name] = []string{tl.Name}
	}
	return nil
}

func (p *Problem) checkCondition(entity string, c Condition) error {
	if !c.Relation.IsValid() {
		return Malformed(entity, "unknown temporal relation %q", c.Relation)
	}
	if c.Amount < 1 {
		return Malformed(entity, "condition amount must be at least 1, got %d", c.Amount)
	}
	if len(c.Object) == 0 {
		return Malformed(entity, "condition on %q names no object", c.Value)
	}
	for _, obj := range c.Object {
		resolved, ok := p.members[obj]
		if !ok {
			return Malformed(entity, "condition references unknown object %q", obj)
		}
		if len(resolved) == 0 {
			return Malformed(entity, "condition object %q contains no timelines", obj)
		}
		for _, tl := range resolved {
			if _, ok := p.valueIdx[tl][c.Value]; !ok {
				return Malformed(entity, "condition value %q does not exist on timeline %q", c.Value, tl)
			}
		}
	}
	return nil
}

func (p *Problem) checkToken(i int, tok Token) error {
	entity := fmt.Sprintf("token #%d (%s.%s)", i, tok.Timeline, tok.Value)
	if _, ok := p.timelineIdx[tok.Timeline]; !ok {
		return Malformed(entity, "unknown timeline %q", tok.Timeline)
	}
	if _, ok := p.valueIdx[tok.Timeline][tok.Value]; !ok {
		return Malformed(entity, "unknown value %q", tok.Value)
	}
	if tok.Capacity < 1 {
		return Malformed(entity, "capacity must be at least 1, got %d", tok.Capacity)
	}
	if fact, ok := tok.Time.(FactTime); ok {
		start, hasStart := fact.Start.Value()
		end, hasEnd := fact.End.Value()
		if hasStart && start < 0 {
			return Malformed(entity, "negative start bound %d", start)
		}
		if hasEnd && end < 0 {
			return Malformed(entity, "negative end bound %d", end)
		}
		if hasStart && hasEnd && start > end {
			return Malformed(entity, "start bound %d after end bound %d", start, end)
		}
	}
	for _, c := range tok.Conditions {
		if err := p.checkCondition(entity, c); err != nil {
			return err
		}
	}
	return nil
}

// Timelines returns the timelines in input order. The slice must not be modified.
func (p *Problem) Timelines() []Timeline { return p.timelines }

// Groups returns the groups in input order. The slice must not be modified.
func (p *Problem) Groups() []Group { return p.groups }

// Tokens returns the tokens in input order. The slice must not be modified.
func (p *Problem) Tokens() []Token { return p.tokens }

// Timeline looks up a timeline by name.
func (p *Problem) Timeline(name string) (Timeline, bool) {
	i, ok := p.timelineIdx[name]
	if !ok {
		return Timeline{}, false
	}
	return p.timelines[i], true
}

// Value looks up a value on a timeline.
func (p *Problem) Value(timeline, value string) (Value, bool) {
	i, ok := p.timelineIdx[timeline]
	if !ok {
		return Value{}, false
	}
	j, ok := p.valueIdx[timeline][value]
	if !ok {
		return Value{}, false
	}
	return p.timelines[i].Values[j], true
}

// Members resolves timeline and group names to the sorted set of concrete
// timelines they denote. Unknown names are ignored.
func (p *Problem) Members(objects []string) []string {
	set := make(map[string]struct{})
	for _, obj := range objects {
		for _, tl := range p.members[obj] {
			set[tl] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
