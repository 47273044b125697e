/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package wire

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/friendsincode/paraspace/internal/problem"
)

const obsYAML = `
timelines:
  - name: obj
    values:
      - name: s1
        duration: [5, 6]
        capacity: 0
        conditions: []
      - name: s2
        duration: [1, null]
        capacity: 0
        conditions:
          - temporal_relationship: MetBy
            object: [obj]
            value: s1
            amount: 0
groups: []
tokens:
  - timeline_name: obj
    value: s2
    capacity: 0
    const_time: null
    conditions: []
`

func sampleProblem(t *testing.T) *problem.Problem {
	t.Helper()
	p, err := problem.MakeProblem(
		[]problem.Timeline{
			{Name: "T1", Values: []problem.Value{{Name: "u", Duration: problem.Duration{Min: 5, Max: problem.Fixed(5)}, Capacity: 2}}},
			{Name: "X", Values: []problem.Value{{
				Name:     "v",
				Duration: problem.Duration{Min: 1, Max: problem.Unbounded()},
				Capacity: 1,
				Conditions: []problem.Condition{
					{Relation: problem.Cover, Object: []string{"G"}, Value: "u", Amount: 2},
				},
			}}},
		},
		[]problem.Group{{Name: "G", Members: []string{"T1"}}},
		[]problem.Token{
			{Timeline: "X", Value: "v", Capacity: 1, Time: problem.FactAt(1, 3)},
			{Timeline: "X", Value: "v", Capacity: 1, Time: problem.Fact(problem.Fixed(4), problem.Unbounded()),
				Conditions: []problem.Condition{{Relation: problem.StartsAfter, Object: []string{"T1"}, Value: "u", Amount: 1}}},
			{Timeline: "T1", Value: "u", Capacity: 1, Time: problem.Goal()},
		},
	)
	if err != nil {
		t.Fatalf("MakeProblem: %v", err)
	}
	return p
}

func TestProblemRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			doc := FromProblem(sampleProblem(t))

			data, err := Encode(doc, format)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(data, format)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			p, err := decoded.ToProblem()
			if err != nil {
				t.Fatalf("ToProblem: %v", err)
			}
			if again := FromProblem(p); !reflect.DeepEqual(doc, again) {
				t.Fatalf("round trip changed the problem:\n%+v\n%+v", doc, again)
			}
		})
	}
}

func TestDecode_BindingDefaults(t *testing.T) {
	doc, err := Decode([]byte(obsYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p, err := doc.ToProblem()
	if err != nil {
		t.Fatalf("ToProblem: %v", err)
	}

	v, ok := p.Value("obj", "s2")
	if !ok {
		t.Fatal("value s2 missing")
	}
	if v.Capacity != 1 || v.Conditions[0].Amount != 1 {
		t.Fatalf("zero capacity/amount not defaulted: %+v", v)
	}
	if v.Duration.Max.IsFixed() {
		t.Fatal("null max duration should be unbounded")
	}
	if !problem.IsGoal(p.Tokens()[0].Time) {
		t.Fatal("null const_time should be a goal")
	}
}

func TestDecode_ConditionObjectKey(t *testing.T) {
	const doc = `{
  "timelines": [{"name": "obj", "values": [
    {"name": "s1", "duration": [5, 6], "capacity": 1, "conditions": []},
    {"name": "s2", "duration": [1, null], "capacity": 1, "conditions": [
      {"temporal_relationship": "MetBy", "object": ["obj"], "value": "s1", "amount": 1}
    ]}
  ]}],
  "groups": [],
  "tokens": [{"timeline_name": "obj", "value": "s2", "capacity": 1, "const_time": null, "conditions": []}]
}`
	d, err := Decode([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p, err := d.ToProblem()
	if err != nil {
		t.Fatalf("ToProblem: %v", err)
	}
	v, _ := p.Value("obj", "s2")
	if got := v.Conditions[0].Object; !reflect.DeepEqual(got, []string{"obj"}) {
		t.Fatalf("condition object = %v, want [obj]", got)
	}

	data, err := json.Marshal(FromProblem(p))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"object":["obj"]`) {
		t.Fatalf("encoded condition lacks object key: %s", data)
	}
}

func TestToProblem_Malformed(t *testing.T) {
	base := func() ProblemDoc {
		return ProblemDoc{
			Timelines: []TimelineDoc{{Name: "T", Values: []ValueDoc{{Name: "a", Duration: []*int64{Int(1), nil}, Capacity: 1}}}},
			Tokens:    []TokenDoc{{TimelineName: "T", Value: "a", Capacity: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*ProblemDoc)
	}{
		{"short duration", func(d *ProblemDoc) { d.Timelines[0].Values[0].Duration = []*int64{Int(1)} }},
		{"null min duration", func(d *ProblemDoc) { d.Timelines[0].Values[0].Duration = []*int64{nil, nil} }},
		{"bad const_time", func(d *ProblemDoc) { d.Tokens[0].ConstTime = []*int64{Int(1)} }},
		{"unknown relation", func(d *ProblemDoc) {
			d.Tokens[0].Conditions = []ConditionDoc{{TemporalRelationship: "Before", Object: []string{"T"}, Value: "a"}}
		}},
		{"unknown timeline", func(d *ProblemDoc) { d.Tokens[0].TimelineName = "U" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := base()
			tt.mutate(&doc)
			if _, err := doc.ToProblem(); !errors.Is(err, problem.ErrMalformedProblem) {
				t.Fatalf("expected MalformedProblem, got %v", err)
			}
		})
	}

	if _, err := base().ToProblem(); err != nil {
		t.Fatalf("base document rejected: %v", err)
	}
}

func TestSolutionDoc_InfiniteEnd(t *testing.T) {
	sol := problem.Solution{Tokens: []problem.SolutionToken{
		{ObjectName: "obj", Value: "s1", StartTime: 0, EndTime: 5},
		{ObjectName: "obj", Value: "s2", StartTime: 5, EndTime: math.Inf(1)},
	}}
	doc := FromSolution(sol)

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"end_time":null`) {
		t.Fatalf("open end not encoded as null: %s", data)
	}

	var back SolutionDoc
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := back.ToSolution(); !reflect.DeepEqual(got, sol) {
		t.Fatalf("solution round trip: %v != %v", got, sol)
	}
	if got := doc.String(); got != "Solution([SolutionToken(obj, s1, 0, 5), SolutionToken(obj, s2, 5, inf)])" {
		t.Fatalf("String() = %s", got)
	}
}

func TestFingerprint(t *testing.T) {
	doc := FromProblem(sampleProblem(t))
	a, err := Fingerprint(doc)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, _ := Fingerprint(FromProblem(sampleProblem(t)))
	if a != b || len(a) != 64 {
		t.Fatalf("fingerprints differ or malformed: %s %s", a, b)
	}

	doc.Tokens[0].Capacity = 2
	if c, _ := Fingerprint(doc); c == a {
		t.Fatal("fingerprint ignored a change")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obs.yml")
	if err := os.WriteFile(path, []byte(obsYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(doc.Timelines) != 1 || len(doc.Tokens) != 1 {
		t.Fatalf("unexpected document %v", doc)
	}

	if _, err := LoadFile(filepath.Join(dir, "obs.toml")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
