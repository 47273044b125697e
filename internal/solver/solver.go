/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package solver places ground tokens on their timelines.
//
// The search has two phases. Support resolution picks, for every pending
// condition, a token to satisfy it (reusing before creating, group members in
// name order). Sequencing then orders the tokens of each timeline into
// contiguous segments of one value each. Every decision is checked against a
// temporal network; the first complete assignment wins and is reported at its
// earliest times.
package solver

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/grounding"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/stn"
)

// DefaultMaxTokens bounds expansion when Options.MaxTokens is zero.
const DefaultMaxTokens = 256

// Options configures a solve.
type Options struct {
	Verbose   bool           // emit search events to Trace
	Trace     zerolog.Logger // sink for search events
	Deadline  time.Time      // zero means none
	MaxTokens int            // ground token limit; 0 selects DefaultMaxTokens, negative disables
}

// Interval is a placed token's time span. End is +Inf for open-ended tokens.
type Interval struct {
	Start float64
	End   float64
}

// Stats counts search work.
type Stats struct {
	Nodes      int
	Backtracks int
	Refused    int
}

// Result is a solved plan with the ground structure behind it.
type Result struct {
	Solution problem.Solution
	Tokens   []grounding.GroundToken
	Edges    []grounding.Edge
	Times    []Interval         // indexed by ground token id
	Segments map[string][][]int // timeline -> segments of token ids
	Stats    Stats
}

// Solve returns the earliest plan found for p.
func Solve(ctx context.Context, p *problem.Problem, opts Options) (*problem.Solution, error) {
	res, err := Plan(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return &res.Solution, nil
}

// Plan runs the search and returns the plan with its ground tokens, edges and
// search statistics. The returned plan has passed Verify.
func Plan(ctx context.Context, p *problem.Problem, opts Options) (*Result, error) {
	if p == nil {
		return nil, problem.Malformed("problem", "nil problem")
	}
	if !opts.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, opts.Deadline)
		defer cancel()
	}

	s := &solver{
		ctx:   ctx,
		p:     p,
		limit: opts.MaxTokens,
		trace: zerolog.Nop(),
	}
	if s.limit == 0 {
		s.limit = DefaultMaxTokens
	}
	if opts.Verbose {
		s.trace = opts.Trace
	}

	root, err := s.root()
	if err != nil {
		return nil, err
	}
	var (
		final   *state
		starved bool
	)
	if root != nil {
		final, starved, err = s.search(root)
		if err != nil {
			return nil, err
		}
	}
	if final == nil {
		s.trace.Info().Int("nodes", s.stats.Nodes).Int("refused", s.stats.Refused).Bool("starved", starved).Msg("search exhausted")
		if starved {
			return nil, problem.Errorf(problem.KindUnbounded,
				"expansion does not reach a fixpoint (recursive supports or more than %d tokens)", s.limit)
		}
		return nil, problem.Errorf(problem.KindInfeasible, "no assignment satisfies all constraints")
	}

	res := s.extract(final)
	if err := Verify(p, res); err != nil {
		return nil, err
	}
	s.trace.Info().
		Int("nodes", res.Stats.Nodes).
		Int("tokens", len(res.Tokens)).
		Int("edges", len(res.Edges)).
		Msg("solved")
	return res, nil
}

// solver runs a depth-first search over a single temporal network. Every
// branch takes a Mark before constraining it and undoes to that Mark when
// the branch fails; a found plan leaves the network at its final state.
type solver struct {
	ctx   context.Context
	p     *problem.Problem
	limit int
	trace zerolog.Logger
	stats Stats
	net   *stn.Network
	depth int
}

// state is one search node. Children receive clones.
type state struct {
	graph *grounding.Graph
	seq   []timelineSeq
	cur   int

	// same-timeline transition edges, fixed once sequencing starts
	preds map[int][]int // source -> required direct predecessors
	succs map[int][]int // target -> sources
}

// timelineSeq is the run of segments placed so far on one timeline. A
// segment holds tokens of one value in order of start; its tail is the member
// that ends last, so the segment spans [start of first member, end of tail].
type timelineSeq struct {
	name     string
	segments [][]int
	tails    []int
	segOf    map[int]int
	unplaced []int
}

func (st *state) clone() *state {
	cp := &state{
		graph: st.graph.Clone(),
		cur:   st.cur,
		preds: st.preds,
		succs: st.succs,
	}
	if st.seq != nil {
		cp.seq = make([]timelineSeq, len(st.seq))
		for i, ts := range st.seq {
			segs := make([][]int, len(ts.segments))
			for j, seg := range ts.segments {
				segs[j] = slices.Clone(seg)
			}
			segOf := make(map[int]int, len(ts.segOf))
			for k, v := range ts.segOf {
				segOf[k] = v
			}
			cp.seq[i] = timelineSeq{
				name:     ts.name,
				segments: segs,
				tails:    slices.Clone(ts.tails),
				segOf:    segOf,
				unplaced: slices.Clone(ts.unplaced),
			}
		}
	}
	return cp
}

func startVar(id int) int { return 1 + 2*id }
func endVar(id int) int   { return 2 + 2*id }

// root seeds the graph and its network. It returns nil without error when the
// seeds alone are already inconsistent.
func (s *solver) root() (*state, error) {
	g := grounding.Seed(s.p)
	s.net = stn.New(2 * len(g.Tokens))
	st := &state{graph: g}
	for id := range g.Tokens {
		if err := s.addToken(st, id); err != nil {
			s.trace.Info().Str("token", g.Tokens[id].String()).Msg("token bounds inconsistent")
			return nil, nil
		}
	}
	return st, nil
}

// search returns the first complete plan below st. When none exists, starved
// reports whether every dead end in the subtree was a refused expansion.
func (s *solver) search(st *state) (found *state, starved bool, err error) {
	if err := s.ctx.Err(); err != nil {
		return nil, false, &problem.Error{Kind: problem.KindCancelled, Reason: err.Error()}
	}
	s.stats.Nodes++

	if req, ok := st.graph.Next(); ok {
		return s.resolve(st, req)
	}
	if st.seq == nil {
		s.beginSequencing(st)
	}
	found, err = s.sequence(st)
	return found, false, err
}

func (s *solver) resolve(st *state, req grounding.Request) (*state, bool, error) {
	opts, refused := st.graph.Options(s.p, req, s.limit)
	if refused {
		s.stats.Refused++
	}
	starved := refused || len(opts) > 0
	source := st.graph.Tokens[req.Token]

	for _, opt := range opts {
		next := st.clone()
		id, err := next.graph.Apply(s.p, req, opt)
		if err != nil {
			return nil, false, err
		}
		mark := s.net.Mark()
		if opt.Kind == grounding.Create {
			s.net.Grow(2)
			if err := s.addToken(next, id); err != nil {
				s.net.Undo(mark)
				starved = false
				continue
			}
		}
		if err := s.addEdge(next.graph.Edges[len(next.graph.Edges)-1]); err != nil {
			s.trace.Info().
				Str("token", source.String()).
				Str("relation", string(req.Condition.Relation)).
				Str("option", opt.String()).
				Msg("support rejected")
			s.net.Undo(mark)
			starved = false
			continue
		}
		s.trace.Info().
			Int("depth", s.depth).
			Str("token", source.String()).
			Str("relation", string(req.Condition.Relation)).
			Str("option", opt.String()).
			Msg("support")

		s.depth++
		found, sub, err := s.search(next)
		s.depth--
		if err != nil || found != nil {
			return found, false, err
		}
		s.net.Undo(mark)
		starved = starved && sub
		s.stats.Backtracks++
	}
	return nil, starved, nil
}

// addToken constrains a token's variables: non-negative start, duration
// window and fixed fact bounds.
func (s *solver) addToken(st *state, id int) error {
	t := st.graph.Tokens[id]
	v, ok := s.p.Value(t.Timeline, t.Value)
	if !ok {
		return problem.Errorf(problem.KindInternal, "token %s has no value", t)
	}
	start, end := startVar(id), endVar(id)
	if err := s.net.Add(start, stn.Origin, stn.W(0)); err != nil {
		return err
	}
	hi := stn.Inf
	if max, ok := v.Duration.Max.Value(); ok {
		hi = stn.W(max)
	}
	if err := s.net.Between(start, end, v.Duration.Min, hi); err != nil {
		return err
	}
	if at, ok := t.Start.Value(); ok {
		if err := s.net.Equal(stn.Origin, start, at); err != nil {
			return err
		}
	}
	if at, ok := t.End.Value(); ok {
		if err := s.net.Equal(stn.Origin, end, at); err != nil {
			return err
		}
	}
	return nil
}

// addEdge encodes e.From -rel-> e.To, with A = From and B = To.
func (s *solver) addEdge(e grounding.Edge) error {
	a, b := e.From, e.To
	nw := s.net
	switch e.Relation {
	case problem.MetBy, problem.MetByTransitionFrom:
		return nw.Equal(endVar(b), startVar(a), 0)
	case problem.Meets:
		return nw.Equal(endVar(a), startVar(b), 0)
	case problem.Cover:
		if err := nw.Add(startVar(a), startVar(b), stn.W(0)); err != nil {
			return err
		}
		return nw.Add(endVar(b), endVar(a), stn.W(0))
	case problem.Equal:
		if err := nw.Equal(startVar(a), startVar(b), 0); err != nil {
			return err
		}
		return nw.Equal(endVar(a), endVar(b), 0)
	case problem.StartsAfter:
		return nw.Add(startVar(a), startVar(b), stn.Strict(0))
	default:
		return problem.Errorf(problem.KindInternal, "unknown relation %q", e.Relation)
	}
}

func (s *solver) beginSequencing(st *state) {
	names := make([]string, 0, len(s.p.Timelines()))
	for _, tl := range s.p.Timelines() {
		names = append(names, tl.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		ids := st.graph.OnTimeline(name)
		if len(ids) == 0 {
			continue
		}
		st.seq = append(st.seq, timelineSeq{name: name, segOf: make(map[int]int), unplaced: ids})
	}

	st.preds = make(map[int][]int)
	st.succs = make(map[int][]int)
	for _, e := range st.graph.Edges {
		if e.Relation != problem.MetByTransitionFrom {
			continue
		}
		if st.graph.Tokens[e.From].Timeline != st.graph.Tokens[e.To].Timeline {
			continue
		}
		st.preds[e.From] = append(st.preds[e.From], e.To)
		st.succs[e.To] = append(st.succs[e.To], e.From)
	}
	if st.seq == nil {
		st.seq = []timelineSeq{}
	}
}

// placement is how a token enters the current timeline.
type placement int

const (
	underTail  placement = iota // joins the last segment, ending no later than its tail
	asTail                      // joins the last segment and becomes its tail
	newSegment                  // opens a segment where the last one ends
)

func (m placement) String() string {
	switch m {
	case underTail:
		return "under_tail"
	case asTail:
		return "as_tail"
	}
	return "new_segment"
}

func (s *solver) sequence(st *state) (*state, error) {
	for st.cur < len(st.seq) && len(st.seq[st.cur].unplaced) == 0 {
		st.cur++
	}
	if st.cur == len(st.seq) {
		return st, nil
	}

	for _, c := range s.candidates(st) {
		for _, how := range []placement{underTail, asTail, newSegment} {
			next := st.clone()
			mark := s.net.Mark()
			if s.place(next, c, how) {
				found, err := s.withinCapacity(next, c, func() (*state, error) {
					ts := next.seq[next.cur]
					s.trace.Info().
						Int("depth", s.depth).
						Str("timeline", ts.name).
						Str("token", next.graph.Tokens[c].String()).
						Stringer("placement", how).
						Int("segment", ts.segOf[c]).
						Msg("place")

					s.depth++
					found, _, err := s.search(next)
					s.depth--
					return found, err
				})
				if err != nil || found != nil {
					return found, err
				}
				s.stats.Backtracks++
			}
			s.net.Undo(mark)
		}
	}
	return nil, nil
}

// candidates orders the unplaced tokens of the current timeline by earliest
// feasible start, then id.
func (s *solver) candidates(st *state) []int {
	ids := slices.Clone(st.seq[st.cur].unplaced)
	sort.SliceStable(ids, func(i, j int) bool {
		ei, ej := s.net.Earliest(startVar(ids[i])), s.net.Earliest(startVar(ids[j]))
		if ei != ej {
			return ei.Less(ej)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// place appends token c to the current timeline. Members of a segment start
// in placement order and start no later than the tail ends, so the segment
// is covered without gaps.
func (s *solver) place(st *state, c int, how placement) bool {
	ts := &st.seq[st.cur]
	tok := st.graph.Tokens[c]
	v, _ := s.p.Value(tok.Timeline, tok.Value)
	if tok.Occupancy() > v.Capacity {
		return false
	}
	k := len(ts.segments)

	idx := k
	if how != newSegment {
		if k == 0 {
			return false
		}
		idx = k - 1
		seg := ts.segments[idx]
		tail, last := ts.tails[idx], seg[len(seg)-1]
		if st.graph.Tokens[tail].Value != tok.Value {
			return false
		}
		if s.net.Add(startVar(c), startVar(last), stn.W(0)) != nil {
			return false
		}
		if how == underTail {
			if s.net.Add(endVar(tail), endVar(c), stn.W(0)) != nil {
				return false
			}
		} else {
			if s.net.Add(endVar(c), endVar(tail), stn.W(0)) != nil ||
				s.net.Add(endVar(tail), startVar(c), stn.W(0)) != nil {
				return false
			}
		}
	} else if k > 0 {
		// segment k-1 closes: sources still waiting for a predecessor
		// placed before it can no longer follow directly
		for _, u := range ts.unplaced {
			if u == c {
				continue
			}
			for _, b := range st.preds[u] {
				if j, ok := ts.segOf[b]; ok && j <= k-2 {
					return false
				}
			}
		}
		if s.net.Equal(endVar(ts.tails[k-1]), startVar(c), 0) != nil {
			return false
		}
	}

	for _, b := range st.preds[c] {
		if j, ok := ts.segOf[b]; !ok || j != idx-1 {
			return false
		}
	}
	for _, a := range st.succs[c] {
		if _, ok := ts.segOf[a]; ok {
			return false
		}
	}

	switch how {
	case newSegment:
		ts.segments = append(ts.segments, []int{c})
		ts.tails = append(ts.tails, c)
	case asTail:
		ts.tails[idx] = c
		fallthrough
	default:
		ts.segments[idx] = append(ts.segments[idx], c)
	}
	ts.segOf[c] = idx
	ts.unplaced = slices.DeleteFunc(ts.unplaced, func(id int) bool { return id == c })
	return true
}

// withinCapacity checks the load at c's start, where the active members of
// its segment are those placed earlier that have not yet ended. Members that
// may or may not still be active are split on, one at a time, until the load
// is decided; then cont runs.
func (s *solver) withinCapacity(st *state, c int, cont func() (*state, error)) (*state, error) {
	ts := st.seq[st.cur]
	tok := st.graph.Tokens[c]
	v, _ := s.p.Value(tok.Timeline, tok.Value)

	active, maybe, pivot := tok.Occupancy(), 0, -1
	for _, m := range ts.segments[ts.segOf[c]] {
		if m == c {
			continue
		}
		occ := st.graph.Tokens[m].Occupancy()
		switch {
		case s.net.Dist(endVar(m), startVar(c)).Less(stn.W(0)):
			active += occ
		case !stn.W(0).Less(s.net.Dist(startVar(c), endVar(m))):
			// ended by the time c starts
		default:
			maybe += occ
			if pivot < 0 {
				pivot = m
			}
		}
	}
	if active > v.Capacity {
		return nil, nil
	}
	if active+maybe <= v.Capacity {
		return cont()
	}

	splits := []struct {
		i, j int
		w    stn.Weight
	}{
		{startVar(c), endVar(pivot), stn.W(0)},     // pivot ends first
		{endVar(pivot), startVar(c), stn.Strict(0)}, // pivot still active
	}
	for _, sp := range splits {
		mark := s.net.Mark()
		if s.net.Add(sp.i, sp.j, sp.w) == nil {
			found, err := s.withinCapacity(st, c, cont)
			if err != nil || found != nil {
				return found, err
			}
		}
		s.net.Undo(mark)
	}
	return nil, nil
}

// extract evaluates the earliest assignment. The tail of a timeline's last
// segment is left open when nothing bounds its end from above.
func (s *solver) extract(st *state) *Result {
	g := st.graph
	x := s.net.Assignment()

	times := make([]Interval, len(g.Tokens))
	for id := range g.Tokens {
		times[id] = Interval{Start: x[startVar(id)], End: x[endVar(id)]}
	}

	segments := make(map[string][][]int, len(st.seq))
	for _, ts := range st.seq {
		segments[ts.name] = ts.segments
		if len(ts.tails) == 0 {
			continue
		}
		if tail := ts.tails[len(ts.tails)-1]; s.net.Unbounded(endVar(tail)) {
			times[tail].End = math.Inf(1)
		}
	}

	sol := problem.Solution{Tokens: make([]problem.SolutionToken, len(g.Tokens))}
	for id, t := range g.Tokens {
		sol.Tokens[id] = problem.SolutionToken{
			ObjectName: t.Timeline,
			Value:      t.Value,
			StartTime:  times[id].Start,
			EndTime:    times[id].End,
		}
	}
	sol.Sort()

	return &Result{
		Solution: sol,
		Tokens:   g.Tokens,
		Edges:    g.Edges,
		Times:    times,
		Segments: segments,
		Stats:    s.stats,
	}
}

// String renders a one-line summary of the plan.
func (r *Result) String() string {
	return fmt.Sprintf("%d tokens, %d edges, %d nodes", len(r.Tokens), len(r.Edges), r.Stats.Nodes)
}
