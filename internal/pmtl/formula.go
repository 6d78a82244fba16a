// Package pmtl implements past-time metric temporal logic: the Formula AST
// and an incremental Oracle that tracks, per subformula, the dense times at
// which it has been observed to hold, without ever rescanning the trace.
package pmtl

import "scan/internal/numset"

type kind uint8

const (
	kindTrue kind = iota
	kindFalse
	kindAtom
	kindNot
	kindAnd
	kindOr
	kindImplies
	kindOnce
	kindHistorically
	kindSince
)

// Bound is a tick window [Lo, Hi] with Lo <= Hi; Hi == numset.MaxTime means
// unbounded.
type Bound struct {
	Lo, Hi numset.Time
}

// Unbounded is the default window [0, MAX].
var Unbounded = Bound{Lo: 0, Hi: numset.MaxTime}

// Formula is a node of the past-time MTL syntax tree. Atoms reference a
// predicate by index into the label vector the oracle is fed on Update.
type Formula struct {
	kind  kind
	atom  int
	bound Bound
	sub   []*Formula
}

func True() *Formula  { return &Formula{kind: kindTrue} }
func False() *Formula { return &Formula{kind: kindFalse} }

// Atom references predicate index i of the observed label vector.
func Atom(i int) *Formula { return &Formula{kind: kindAtom, atom: i} }

func Not(f *Formula) *Formula { return &Formula{kind: kindNot, sub: []*Formula{f}} }

func And(fs ...*Formula) *Formula { return &Formula{kind: kindAnd, sub: fs} }
func Or(fs ...*Formula) *Formula  { return &Formula{kind: kindOr, sub: fs} }

func Implies(lhs, rhs *Formula) *Formula {
	return &Formula{kind: kindImplies, sub: []*Formula{lhs, rhs}}
}

// Once[lo,hi] f holds at t iff f held at some t' in [t-hi, t-lo].
func Once(b Bound, f *Formula) *Formula {
	return &Formula{kind: kindOnce, bound: b, sub: []*Formula{f}}
}

// Historically[lo,hi] f = Not(Once[lo,hi] Not f): f held throughout the
// window.
func Historically(b Bound, f *Formula) *Formula {
	return &Formula{kind: kindHistorically, bound: b, sub: []*Formula{f}}
}

// Since[lo,hi](f, g) holds at t iff g held at some t' in [t-hi, t-lo] and f
// held continuously on (t', t].
func Since(b Bound, f, g *Formula) *Formula {
	return &Formula{kind: kindSince, bound: b, sub: []*Formula{f, g}}
}
