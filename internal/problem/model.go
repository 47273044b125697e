/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package problem

import (
	"fmt"
	"strconv"
)

// Relation is the temporal relation of a condition between the token that
// carries it (self, A) and the supporting token (target, B).
type Relation string

const (
	MetBy               Relation = "MetBy"               // B.end = A.start
	MetByTransitionFrom Relation = "MetByTransitionFrom" // MetBy, and B directly precedes A on B's timeline
	Meets               Relation = "Meets"               // A.end = B.start
	Cover               Relation = "Cover"               // B.start <= A.start and A.end <= B.end
	Equal               Relation = "Equal"               // same start and end
	StartsAfter         Relation = "StartsAfter"         // A.start > B.start
)

// ValidRelations lists every relation in declaration order.
var ValidRelations = []Relation{MetBy, MetByTransitionFrom, Meets, Cover, Equal, StartsAfter}

// IsValid reports whether r is one of ValidRelations.
func (r Relation) IsValid() bool {
	for _, v := range ValidRelations {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRelation parses a relation name.
func ParseRelation(s string) (Relation, error) {
	r := Relation(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown temporal relation %q", s)
	}
	return r, nil
}

// Bound is a time point that is either a fixed non-negative integer or unbounded.
// The zero value is unbounded.
type Bound struct {
	value int64
	fixed bool
}

// Fixed returns a bound pinned at v.
func Fixed(v int64) Bound {
	return Bound{value: v, fixed: true}
}

// Unbounded returns a free bound.
func Unbounded() Bound {
	return Bound{}
}

// IsFixed reports whether the bound carries a value.
func (b Bound) IsFixed() bool {
	return b.fixed
}

// Value returns the pinned value and whether the bound is fixed.
func (b Bound) Value() (int64, bool) {
	return b.value, b.fixed
}

func (b Bound) String() string {
	if !b.fixed {
		return "_"
	}
	return strconv.FormatInt(b.value, 10)
}

// Duration is the allowed length of a value's tokens. Max may be unbounded.
type Duration struct {
	Min int64
	Max Bound
}

// Allows reports whether length d lies within the interval.
func (d Duration) Allows(length int64) bool {
	if length < d.Min {
		return false
	}
	if max, ok := d.Max.Value(); ok && length > max {
		return false
	}
	return true
}

func (d Duration) String() string {
	return fmt.Sprintf("[%d, %s]", d.Min, d.Max)
}

// Condition requires a token of Value on one of Object (timelines or groups)
// related to the carrying token by Relation. Amount is the capacity it draws.
type Condition struct {
	Relation Relation
	Object   []string
	Value    string
	Amount   int
}

// Value is one legal state of a timeline.
type Value struct {
	Name       string
	Duration   Duration
	Capacity   int
	Conditions []Condition
}

// Timeline is a state variable with a closed set of values.
type Timeline struct {
	Name   string
	Values []Value
}

// Group names a set of timelines and groups used as an existential target.
type Group struct {
	Name    string
	Members []string
}

// TokenTime is either GoalTime or FactTime.
type TokenTime interface {
	isTokenTime()
	String() string
}

// GoalTime marks a token that must appear but is placed freely.
type GoalTime struct{}

// FactTime pins a token's endpoints. Unbounded sides are chosen by the solver.
type FactTime struct {
	Start Bound
	End   Bound
}

func (GoalTime) isTokenTime() {}
func (FactTime) isTokenTime() {}

func (GoalTime) String() string { return "goal" }

func (f FactTime) String() string {
	return fmt.Sprintf("fact(%s, %s)", f.Start, f.End)
}

// Goal returns a goal token time.
func Goal() TokenTime {
	return GoalTime{}
}

// Fact returns a fact token time with either side possibly unbounded.
func Fact(start, end Bound) TokenTime {
	return FactTime{Start: start, End: end}
}

// FactAt is shorthand for a fact with both sides fixed.
func FactAt(start, end int64) TokenTime {
	return FactTime{Start: Fixed(start), End: Fixed(end)}
}

// IsGoal reports whether t is a goal.
func IsGoal(t TokenTime) bool {
	_, ok := t.(GoalTime)
	return ok
}

// Token is a problem-supplied occurrence of a value. Capacity is the amount
// it consumes; Conditions are in addition to the value's own.
type Token struct {
	Timeline   string
	Value      string
	Capacity   int
	Time       TokenTime
	Conditions []Condition
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		c.Object = append([]string(nil), c.Object...)
		out[i] = c
	}
	return out
}

func cloneTimeline(tl Timeline) Timeline {
	values := make([]Value, len(tl.Values))
	for i, v := range tl.Values {
		v.Conditions = cloneConditions(v.Conditions)
		values[i] = v
	}
	tl.Values = values
	return tl
}
