/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stn maintains a simple temporal network: a conjunction of
// difference constraints x_j - x_i <= w over time points, kept closed under
// all-pairs shortest paths so consistency and tight bounds are available after
// every insertion.
//
// Strict constraints are expressed with an infinitesimal component. A weight
// {C, Eps} stands for C - Eps*delta for an arbitrarily small delta > 0.
package stn

import (
	"errors"
	"math"
)

// ErrInconsistent is returned when a constraint would close a negative cycle.
var ErrInconsistent = errors.New("stn: inconsistent constraint")

// Origin is the time point fixed at zero.
const Origin = 0

// Weight is a symbolic bound C - Eps*delta.
type Weight struct {
	C   int64
	Eps int64
}

// Inf is the absent constraint.
var Inf = Weight{C: math.MaxInt64}

// W returns a plain integer weight.
func W(c int64) Weight { return Weight{C: c} }

// Strict returns the weight of "< c".
func Strict(c int64) Weight { return Weight{C: c, Eps: 1} }

// IsInf reports whether w is the absent constraint.
func (w Weight) IsInf() bool { return w.C == math.MaxInt64 }

// Less orders weights by value.
func (w Weight) Less(o Weight) bool {
	if w.C != o.C {
		return w.C < o.C
	}
	if w.IsInf() {
		return false
	}
	return w.Eps > o.Eps
}

// Add sums two weights; infinity absorbs.
func (w Weight) Add(o Weight) Weight {
	if w.IsInf() || o.IsInf() {
		return Inf
	}
	return Weight{C: w.C + o.C, Eps: w.Eps + o.Eps}
}

// Neg returns -w. Inf is returned unchanged.
func (w Weight) Neg() Weight {
	if w.IsInf() {
		return Inf
	}
	return Weight{C: -w.C, Eps: -w.Eps}
}

func (w Weight) negative() bool {
	return w.C < 0 || (w.C == 0 && w.Eps > 0)
}

// Float evaluates the weight for a concrete delta.
func (w Weight) Float(delta float64) float64 {
	if w.IsInf() {
		return math.Inf(1)
	}
	return float64(w.C) - float64(w.Eps)*delta
}

// Network holds n time points and the shortest-path closure of its constraints.
// Changes are recorded on a trail so a search can return to an earlier Mark
// without copying the matrix. The zero value is not usable; call New.
type Network struct {
	n      int
	stride int
	dist   []Weight // dist[i*stride+j] bounds x_j - x_i
	eps    int64    // largest |Eps| seen on an inserted edge
	trail  []change
}

type change struct {
	i, j int
	old  Weight
}

// Mark is a point on the trail that Undo can return to.
type Mark struct {
	trail int
	n     int
	eps   int64
}

// New returns a network with the origin and n additional time points.
func New(n int) *Network {
	nw := &Network{}
	nw.Grow(n + 1)
	return nw
}

// Len returns the number of time points including the origin.
func (nw *Network) Len() int { return nw.n }

// Grow appends k unconstrained time points and returns the index of the first.
// Storage grows geometrically; points dropped by Undo are reinitialized here.
func (nw *Network) Grow(k int) int {
	first := nw.n
	size := nw.n + k
	if size > nw.stride {
		stride := max(2*nw.stride, size, 8)
		dist := make([]Weight, stride*stride)
		for i := 0; i < nw.n; i++ {
			copy(dist[i*stride:i*stride+nw.n], nw.dist[i*nw.stride:i*nw.stride+nw.n])
		}
		nw.stride = stride
		nw.dist = dist
	}
	for i := 0; i < size; i++ {
		lo := first
		if i >= first {
			lo = 0
		}
		for j := lo; j < size; j++ {
			if i == j {
				nw.dist[i*nw.stride+j] = Weight{}
			} else {
				nw.dist[i*nw.stride+j] = Inf
			}
		}
	}
	nw.n = size
	return first
}

// Clone returns an independent copy with an empty trail.
func (nw *Network) Clone() *Network {
	return &Network{
		n:      nw.n,
		stride: nw.stride,
		dist:   append([]Weight(nil), nw.dist...),
		eps:    nw.eps,
	}
}

// Mark returns the current trail position.
func (nw *Network) Mark() Mark {
	return Mark{trail: len(nw.trail), n: nw.n, eps: nw.eps}
}

// Undo restores the network to m, dropping constraints and time points added
// since. Marks taken after m become invalid.
func (nw *Network) Undo(m Mark) {
	for k := len(nw.trail) - 1; k >= m.trail; k-- {
		c := nw.trail[k]
		nw.dist[c.i*nw.stride+c.j] = c.old
	}
	nw.trail = nw.trail[:m.trail]
	nw.n = m.n
	nw.eps = m.eps
}

// Dist returns the tightest implied bound on x_j - x_i.
func (nw *Network) Dist(i, j int) Weight {
	return nw.dist[i*nw.stride+j]
}

// Unbounded reports whether nothing bounds x_j from above, relative to the
// origin or to any other point.
func (nw *Network) Unbounded(j int) bool {
	for i := 0; i < nw.n; i++ {
		if i != j && !nw.Dist(i, j).IsInf() {
			return false
		}
	}
	return true
}

// Add inserts x_j - x_i <= w. On ErrInconsistent the network is unchanged.
func (nw *Network) Add(i, j int, w Weight) error {
	if w.IsInf() {
		return nil
	}
	n, s := nw.n, nw.stride
	if back := nw.dist[j*s+i]; !back.IsInf() && back.Add(w).negative() {
		return ErrInconsistent
	}
	if !w.Less(nw.dist[i*s+j]) {
		return nil
	}
	if e := abs(w.Eps); e > nw.eps {
		nw.eps = e
	}
	for a := 0; a < n; a++ {
		toI := nw.dist[a*s+i]
		if toI.IsInf() {
			continue
		}
		head := toI.Add(w)
		for b := 0; b < n; b++ {
			fromJ := nw.dist[j*s+b]
			if fromJ.IsInf() {
				continue
			}
			if cand := head.Add(fromJ); cand.Less(nw.dist[a*s+b]) {
				nw.trail = append(nw.trail, change{i: a, j: b, old: nw.dist[a*s+b]})
				nw.dist[a*s+b] = cand
			}
		}
	}
	return nil
}

// Equal constrains x_j - x_i = c.
func (nw *Network) Equal(i, j int, c int64) error {
	if err := nw.Add(i, j, W(c)); err != nil {
		return err
	}
	return nw.Add(j, i, W(-c))
}

// Between constrains lo <= x_j - x_i <= hi. An infinite hi leaves it open.
func (nw *Network) Between(i, j int, lo int64, hi Weight) error {
	if err := nw.Add(j, i, W(-lo)); err != nil {
		return err
	}
	return nw.Add(i, j, hi)
}

// Earliest returns the smallest value of x_j consistent with the network.
// It returns Inf when x_j has no lower bound.
func (nw *Network) Earliest(j int) Weight {
	return nw.Dist(j, Origin).Neg()
}

// Latest returns the largest value of x_j, or Inf when unbounded above.
func (nw *Network) Latest(j int) Weight {
	return nw.Dist(Origin, j)
}

// Delta returns an infinitesimal small enough that every symbolic bound in
// the network evaluates to a consistent numeric assignment.
func (nw *Network) Delta() float64 {
	m := nw.eps
	for j := 0; j < nw.n; j++ {
		if w := nw.Dist(j, Origin); !w.IsInf() {
			if e := abs(w.Eps); e > m {
				m = e
			}
		}
	}
	return 1 / float64(3*m+2)
}

// Assignment returns the earliest solution, evaluated at Delta.
func (nw *Network) Assignment() []float64 {
	delta := nw.Delta()
	out := make([]float64, nw.n)
	for j := range out {
		e := nw.Earliest(j)
		if e.IsInf() {
			out[j] = math.Inf(-1)
			continue
		}
		out[j] = e.Float(delta)
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
