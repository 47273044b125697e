/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package problem

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// SolutionToken is a placed token. EndTime is +Inf when the last token of a
// timeline may extend indefinitely.
type SolutionToken struct {
	ObjectName string
	Value      string
	StartTime  float64
	EndTime    float64
}

// OpenEnded reports whether the token has no end.
func (t SolutionToken) OpenEnded() bool {
	return math.IsInf(t.EndTime, 1)
}

func (t SolutionToken) String() string {
	return fmt.Sprintf("%s.%s [%g, %g]", t.ObjectName, t.Value, t.StartTime, t.EndTime)
}

// Solution is an ordered list of tokens, grouped by object then start time.
type Solution struct {
	Tokens []SolutionToken
}

// Sort orders tokens by object name, then start time, keeping the relative
// order of ties.
func (s *Solution) Sort() {
	sort.SliceStable(s.Tokens, func(i, j int) bool {
		a, b := s.Tokens[i], s.Tokens[j]
		if a.ObjectName != b.ObjectName {
			return a.ObjectName < b.ObjectName
		}
		return a.StartTime < b.StartTime
	})
}

// ByObject returns the tokens placed on one timeline, in solution order.
func (s Solution) ByObject(name string) []SolutionToken {
	var out []SolutionToken
	for _, t := range s.Tokens {
		if t.ObjectName == name {
			out = append(out, t)
		}
	}
	return out
}

func (s Solution) String() string {
	parts := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		parts[i] = t.String()
	}
	return "Solution{" + strings.Join(parts, ", ") + "}"
}
