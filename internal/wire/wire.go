/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package wire holds the document form of problems and solutions exchanged
// with scripts, files and the HTTP API.
package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/paraspace/internal/problem"
)

// ProblemDoc mirrors problem.Problem.
type ProblemDoc struct {
	Timelines []TimelineDoc `json:"timelines" yaml:"timelines"`
	Groups    []GroupDoc    `json:"groups" yaml:"groups"`
	Tokens    []TokenDoc    `json:"tokens" yaml:"tokens"`
}

// TimelineDoc mirrors problem.Timeline.
type TimelineDoc struct {
	Name   string     `json:"name" yaml:"name"`
	Values []ValueDoc `json:"values" yaml:"values"`
}

// ValueDoc mirrors problem.Value. Duration is [min, max] with a null max
// for unbounded values.
type ValueDoc struct {
	Name       string         `json:"name" yaml:"name"`
	Duration   []*int64       `json:"duration" yaml:"duration"`
	Conditions []ConditionDoc `json:"conditions" yaml:"conditions"`
	Capacity   int            `json:"capacity" yaml:"capacity"`
}

// ConditionDoc mirrors problem.Condition.
type ConditionDoc struct {
	TemporalRelationship string   `json:"temporal_relationship" yaml:"temporal_relationship"`
	Object               []string `json:"object" yaml:"object"`
	Value                string   `json:"value" yaml:"value"`
	Amount               int      `json:"amount" yaml:"amount"`
}

// GroupDoc mirrors problem.Group.
type GroupDoc struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members" yaml:"members"`
}

// TokenDoc mirrors problem.Token. A null ConstTime is a goal; otherwise it
// is [start, end] with null for unbounded sides.
type TokenDoc struct {
	TimelineName string         `json:"timeline_name" yaml:"timeline_name"`
	Value        string         `json:"value" yaml:"value"`
	Capacity     int            `json:"capacity" yaml:"capacity"`
	ConstTime    []*int64       `json:"const_time" yaml:"const_time"`
	Conditions   []ConditionDoc `json:"conditions" yaml:"conditions"`
}

// SolutionDoc mirrors problem.Solution.
type SolutionDoc struct {
	Tokens []SolutionTokenDoc `json:"tokens" yaml:"tokens"`
}

// SolutionTokenDoc mirrors problem.SolutionToken. A null EndTime is +Inf.
type SolutionTokenDoc struct {
	ObjectName string   `json:"object_name" yaml:"object_name"`
	Value      string   `json:"value" yaml:"value"`
	StartTime  float64  `json:"start_time" yaml:"start_time"`
	EndTime    *float64 `json:"end_time" yaml:"end_time"`
}

// Goal is the ConstTime of a goal token.
func Goal() []*int64 { return nil }

// Fact is the ConstTime of a fact token; nil sides are unbounded.
func Fact(start, end *int64) []*int64 { return []*int64{start, end} }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

func boundPtr(b problem.Bound) *int64 {
	if v, ok := b.Value(); ok {
		return Int(v)
	}
	return nil
}

func ptrBound(v *int64) problem.Bound {
	if v == nil {
		return problem.Unbounded()
	}
	return problem.Fixed(*v)
}

// orDefault maps an unset (zero) capacity or amount to 1.
func orDefault(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

// FromProblem converts a validated problem to its document form.
func FromProblem(p *problem.Problem) ProblemDoc {
	doc := ProblemDoc{
		Timelines: make([]TimelineDoc, len(p.Timelines())),
		Groups:    make([]GroupDoc, len(p.Groups())),
		Tokens:    make([]TokenDoc, len(p.Tokens())),
	}
	for i, tl := range p.Timelines() {
		td := TimelineDoc{Name: tl.Name, Values: make([]ValueDoc, len(tl.Values))}
		for j, v := range tl.Values {
			td.Values[j] = ValueDoc{
				Name:       v.Name,
				Duration:   []*int64{Int(v.Duration.Min), boundPtr(v.Duration.Max)},
				Conditions: fromConditions(v.Conditions),
				Capacity:   v.Capacity,
			}
		}
		doc.Timelines[i] = td
	}
	for i, g := range p.Groups() {
		doc.Groups[i] = GroupDoc{Name: g.Name, Members: append(make([]string, 0, len(g.Members)), g.Members...)}
	}
	for i, tok := range p.Tokens() {
		td := TokenDoc{
			TimelineName: tok.Timeline,
			Value:        tok.Value,
			Capacity:     tok.Capacity,
			Conditions:   fromConditions(tok.Conditions),
		}
		if fact, ok := tok.Time.(problem.FactTime); ok {
			td.ConstTime = Fact(boundPtr(fact.Start), boundPtr(fact.End))
		}
		doc.Tokens[i] = td
	}
	return doc
}

func fromConditions(in []problem.Condition) []ConditionDoc {
	out := make([]ConditionDoc, len(in))
	for i, c := range in {
		out[i] = ConditionDoc{
			TemporalRelationship: string(c.Relation),
			Object:               append(make([]string, 0, len(c.Object)), c.Object...),
			Value:                c.Value,
			Amount:               c.Amount,
		}
	}
	return out
}

// ToProblem converts and validates the document.
func (d ProblemDoc) ToProblem() (*problem.Problem, error) {
	timelines := make([]problem.Timeline, len(d.Timelines))
	for i, td := range d.Timelines {
		tl := problem.Timeline{Name: td.Name, Values: make([]problem.Value, len(td.Values))}
		for j, vd := range td.Values {
			entity := td.Name + "." + vd.Name
			if len(vd.Duration) != 2 || vd.Duration[0] == nil {
				return nil, problem.Malformed(entity, "duration must be [min, max|null]")
			}
			conds, err := toConditions(entity, vd.Conditions)
			if err != nil {
				return nil, err
			}
			tl.Values[j] = problem.Value{
				Name:       vd.Name,
				Duration:   problem.Duration{Min: *vd.Duration[0], Max: ptrBound(vd.Duration[1])},
				Capacity:   orDefault(vd.Capacity),
				Conditions: conds,
			}
		}
		timelines[i] = tl
	}

	groups := make([]problem.Group, len(d.Groups))
	for i, gd := range d.Groups {
		groups[i] = problem.Group{Name: gd.Name, Members: gd.Members}
	}

	tokens := make([]problem.Token, len(d.Tokens))
	for i, td := range d.Tokens {
		entity := fmt.Sprintf("token #%d (%s.%s)", i, td.TimelineName, td.Value)
		conds, err := toConditions(entity, td.Conditions)
		if err != nil {
			return nil, err
		}
		tok := problem.Token{
			Timeline:   td.TimelineName,
			Value:      td.Value,
			Capacity:   orDefault(td.Capacity),
			Time:       problem.Goal(),
			Conditions: conds,
		}
		switch len(td.ConstTime) {
		case 0:
		case 2:
			tok.Time = problem.Fact(ptrBound(td.ConstTime[0]), ptrBound(td.ConstTime[1]))
		default:
			return nil, problem.Malformed(entity, "const_time must be null or [start|null, end|null]")
		}
		tokens[i] = tok
	}
	return problem.MakeProblem(timelines, groups, tokens)
}

func toConditions(entity string, in []ConditionDoc) ([]problem.Condition, error) {
	out := make([]problem.Condition, len(in))
	for i, cd := range in {
		rel, err := problem.ParseRelation(cd.TemporalRelationship)
		if err != nil {
			return nil, problem.Malformed(entity, "%v", err)
		}
		out[i] = problem.Condition{
			Relation: rel,
			Object:   cd.Object,
			Value:    cd.Value,
			Amount:   orDefault(cd.Amount),
		}
	}
	return out, nil
}

// FromSolution converts a solution to its document form.
func FromSolution(sol problem.Solution) SolutionDoc {
	doc := SolutionDoc{Tokens: make([]SolutionTokenDoc, len(sol.Tokens))}
	for i, t := range sol.Tokens {
		td := SolutionTokenDoc{ObjectName: t.ObjectName, Value: t.Value, StartTime: t.StartTime}
		if !math.IsInf(t.EndTime, 1) {
			end := t.EndTime
			td.EndTime = &end
		}
		doc.Tokens[i] = td
	}
	return doc
}

// ToSolution converts the document back to a solution.
func (d SolutionDoc) ToSolution() problem.Solution {
	sol := problem.Solution{Tokens: make([]problem.SolutionToken, len(d.Tokens))}
	for i, td := range d.Tokens {
		end := math.Inf(1)
		if td.EndTime != nil {
			end = *td.EndTime
		}
		sol.Tokens[i] = problem.SolutionToken{ObjectName: td.ObjectName, Value: td.Value, StartTime: td.StartTime, EndTime: end}
	}
	return sol
}

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Decode parses a problem document.
func Decode(data []byte, format Format) (ProblemDoc, error) {
	var doc ProblemDoc
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return doc, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return doc, fmt.Errorf("decode %s problem: %w", format, err)
	}
	return doc, nil
}

// LoadFile reads a problem document, choosing the format by extension.
func LoadFile(path string) (ProblemDoc, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return ProblemDoc{}, fmt.Errorf("%s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ProblemDoc{}, fmt.Errorf("read problem: %w", err)
	}
	return Decode(data, format)
}

// Encode serializes any document in the given format.
func Encode(v any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(v, "", "  ")
	case FormatYAML:
		return yaml.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Fingerprint hashes the canonical JSON form of a problem. Solving is
// deterministic, so equal fingerprints have equal outcomes.
func Fingerprint(doc ProblemDoc) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (d ProblemDoc) String() string {
	return fmt.Sprintf("Problem(timelines=%d, groups=%d, tokens=%d)", len(d.Timelines), len(d.Groups), len(d.Tokens))
}

func (d SolutionDoc) String() string {
	parts := make([]string, len(d.Tokens))
	for i, t := range d.Tokens {
		end := "inf"
		if t.EndTime != nil {
			end = fmt.Sprintf("%g", *t.EndTime)
		}
		parts[i] = fmt.Sprintf("SolutionToken(%s, %s, %g, %s)", t.ObjectName, t.Value, t.StartTime, end)
	}
	return "Solution([" + strings.Join(parts, ", ") + "])"
}
