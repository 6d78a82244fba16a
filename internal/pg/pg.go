// Package pg implements the Program Graph: locations, actions, typed
// variables, guarded transitions and per-action effects, built through a
// validating Builder and then executed as an immutable, shareable
// ProgramGraph with per-run mutable location/valuation state.
package pg

import (
	"fmt"
	"math/rand"

	"scan/internal/expr"
)

// Location identifies a PG control state by a small dense index.
type Location int

// Action identifies a PG action by a small dense index. EPSILON is the
// sentinel denoting an autonomous, unobservable transition.
type Action int

const EPSILON Action = -1

// Var identifies a PG variable by a small dense index.
type Var int

// Expr is the expression type used throughout a PG: the shared expression
// language instantiated over Var.
type Expr = expr.Expression[Var]

// PgError is the builder/runtime error taxonomy named by spec.md §4.2.
type PgError struct {
	msg string
}

func (e *PgError) Error() string { return e.msg }

func errf(format string, args ...interface{}) *PgError {
	return &PgError{msg: fmt.Sprintf(format, args...)}
}

func errMissingLocation(l Location) *PgError { return errf("missing location %d", l) }
func errMissingAction(a Action) *PgError     { return errf("missing action %d", a) }
func errMissingVar(v Var) *PgError           { return errf("missing var %d", v) }
func errTypeMismatch() *PgError              { return errf("type mismatch") }
func errEpsilonEffects() *PgError            { return errf("epsilon action cannot carry effects") }
func errEffectOnSend() *PgError              { return errf("cannot add effect to a send action") }
func errEffectOnReceive() *PgError           { return errf("cannot add effect to a receive action") }

// effectKind tags the three disjoint effect shapes an action can carry.
type effectKind uint8

const (
	effectOrdinary effectKind = iota
	effectSend
	effectReceive
)

type assignment struct {
	v    Var
	expr Expr
}

type effect struct {
	kind   effectKind
	assign []assignment // effectOrdinary
	msg    Expr          // effectSend
	target Var           // effectReceive
}

// transitionKey identifies one outgoing edge by the action that fires it and
// the location it lands in.
type transitionKey struct {
	action Action
	post   Location
}

// Builder constructs a ProgramGraph incrementally, validating every
// operation eagerly (build-time errors are caller errors).
type Builder struct {
	effects     []effect
	transitions []map[transitionKey]*Expr // nil guard == unconditional
	order       [][]transitionKey         // per-location insertion order of transitions
	varTypes    []expr.Type
	varInit     []expr.Value
}

const InitialLocation Location = 0

// NewBuilder creates a Builder seeded with a single initial location.
func NewBuilder() *Builder {
	b := &Builder{}
	loc := b.NewLocation()
	if loc != InitialLocation {
		panic("pg: initial location invariant violated")
	}
	return b
}

func (b *Builder) InitialLocation() Location { return InitialLocation }

func (b *Builder) varType(v Var) (expr.Type, bool) {
	if int(v) < 0 || int(v) >= len(b.varTypes) {
		return expr.Type{}, false
	}
	return b.varTypes[v], true
}

// NewVar adds a variable whose initial value is given by a well-typed,
// closed expression (it may reference only previously declared variables).
func (b *Builder) NewVar(init Expr) (Var, error) {
	ty, err := expr.StaticType(init, b.varType)
	if err != nil {
		return 0, err
	}
	compiled, err := expr.Compile(init, b.varType)
	if err != nil {
		return 0, err
	}
	val, ok := compiled.Eval(constValuation{b: b})
	if !ok {
		return 0, errf("variable initializer evaluated to undefined")
	}
	idx := Var(len(b.varTypes))
	b.varTypes = append(b.varTypes, ty)
	b.varInit = append(b.varInit, val)
	return idx, nil
}

// constValuation looks up the already-resolved initial values of
// previously declared variables, used only while evaluating a NewVar
// initializer (which may only reference earlier variables).
type constValuation struct{ b *Builder }

func (c constValuation) Get(v Var) (expr.Value, bool) {
	if int(v) < 0 || int(v) >= len(c.b.varInit) {
		return expr.Value{}, false
	}
	return c.b.varInit[v], true
}

// NewAction adds an ordinary action with no effects yet.
func (b *Builder) NewAction() Action {
	idx := Action(len(b.effects))
	b.effects = append(b.effects, effect{kind: effectOrdinary})
	return idx
}

// AddEffect appends an assignment to an ordinary action's effect list.
func (b *Builder) AddEffect(action Action, v Var, e Expr) error {
	if action == EPSILON {
		return errEpsilonEffects()
	}
	exprTy, err := expr.StaticType(e, b.varType)
	if err != nil {
		return err
	}
	varTy, ok := b.varType(v)
	if !ok {
		return errMissingVar(v)
	}
	if !varTy.Equal(exprTy) {
		return errTypeMismatch()
	}
	if int(action) < 0 || int(action) >= len(b.effects) {
		return errMissingAction(action)
	}
	eff := &b.effects[action]
	switch eff.kind {
	case effectOrdinary:
		eff.assign = append(eff.assign, assignment{v: v, expr: e})
		return nil
	case effectSend:
		return errEffectOnSend()
	default:
		return errEffectOnReceive()
	}
}

// NewSend adds a send action carrying the given message expression. Used
// only by Channel System composition, not by direct PG users.
func (b *Builder) NewSend(msg Expr) (Action, error) {
	if _, err := expr.StaticType(msg, b.varType); err != nil {
		return 0, err
	}
	idx := Action(len(b.effects))
	b.effects = append(b.effects, effect{kind: effectSend, msg: msg})
	return idx, nil
}

// NewReceive adds a receive action writing into the given variable.
func (b *Builder) NewReceive(v Var) (Action, error) {
	if _, ok := b.varType(v); !ok {
		return 0, errMissingVar(v)
	}
	idx := Action(len(b.effects))
	b.effects = append(b.effects, effect{kind: effectReceive, target: v})
	return idx, nil
}

// NewLocation adds a new location.
func (b *Builder) NewLocation() Location {
	idx := Location(len(b.transitions))
	b.transitions = append(b.transitions, map[transitionKey]*Expr{})
	b.order = append(b.order, nil)
	return idx
}

// AddTransition adds an edge pre --action--> post, optionally guarded.
// Repeated calls for the same (pre, action, post) OR-combine their guards.
// The first call for a given edge fixes its position in the location's
// transition order; later calls only refine its guard.
func (b *Builder) AddTransition(pre Location, action Action, post Location, guard *Expr) error {
	if int(pre) < 0 || int(pre) >= len(b.transitions) {
		return errMissingLocation(pre)
	}
	if int(post) < 0 || int(post) >= len(b.transitions) {
		return errMissingLocation(post)
	}
	if action != EPSILON && (int(action) < 0 || int(action) >= len(b.effects)) {
		return errMissingAction(action)
	}
	if guard != nil {
		ty, err := expr.StaticType(*guard, b.varType)
		if err != nil {
			return err
		}
		if ty.Kind != expr.KindBool {
			return errTypeMismatch()
		}
	}
	key := transitionKey{action: action, post: post}
	existing, ok := b.transitions[pre][key]
	if !ok {
		b.transitions[pre][key] = guard
		b.order[pre] = append(b.order[pre], key)
		return nil
	}
	if guard == nil {
		return nil // unconditional already present, or adding an unconditional is a no-op either way
	}
	if existing == nil {
		return nil // already unconditional, stays unconditional
	}
	combined := expr.Or(*existing, *guard)
	b.transitions[pre][key] = &combined
	return nil
}

// AddAutonomousTransition adds an epsilon-triggered transition.
func (b *Builder) AddAutonomousTransition(pre, post Location, guard *Expr) error {
	return b.AddTransition(pre, EPSILON, post, guard)
}

// Build finalizes the Builder into an immutable ProgramGraph.
func (b *Builder) Build() (*ProgramGraph, error) {
	compiledEffects := make([]compiledEffect, len(b.effects))
	for i, e := range b.effects {
		ce := compiledEffect{kind: e.kind, target: e.target}
		switch e.kind {
		case effectOrdinary:
			ce.assign = make([]compiledAssignment, len(e.assign))
			for j, a := range e.assign {
				c, err := expr.Compile(a.expr, b.varType)
				if err != nil {
					return nil, err
				}
				ce.assign[j] = compiledAssignment{v: a.v, compiled: c}
			}
		case effectSend:
			c, err := expr.Compile(e.msg, b.varType)
			if err != nil {
				return nil, err
			}
			ce.msg = c
		}
		compiledEffects[i] = ce
	}

	transitions := make([]map[transitionKey]*expr.Compiled[Var], len(b.transitions))
	order := make([][]transitionKey, len(b.transitions))
	for i, locTransitions := range b.transitions {
		compiled := make(map[transitionKey]*expr.Compiled[Var], len(locTransitions))
		for key, guard := range locTransitions {
			if guard == nil {
				compiled[key] = nil
				continue
			}
			c, err := expr.Compile(*guard, b.varType)
			if err != nil {
				return nil, err
			}
			compiled[key] = &c
		}
		transitions[i] = compiled
		order[i] = append([]transitionKey(nil), b.order[i]...)
	}

	varTypes := append([]expr.Type(nil), b.varTypes...)

	return &ProgramGraph{
		location:    InitialLocation,
		vars:        append([]expr.Value(nil), b.varInit...),
		varTypes:    varTypes,
		effects:     compiledEffects,
		transitions: transitions,
		order:       order,
	}, nil
}

type compiledAssignment struct {
	v        Var
	compiled expr.Compiled[Var]
}

type compiledEffect struct {
	kind   effectKind
	assign []compiledAssignment
	msg    expr.Compiled[Var]
	target Var
}

// Transition is one enabled (action, post-location) pair as surfaced by
// PossibleTransitions.
type Transition struct {
	Action Action
	Post   Location
}

// ProgramGraph is the immutable transition/effect table plus per-run mutable
// location and variable valuation. The immutable tables are shared across
// clones (Clone copies only the valuation, giving a cheap, independent run).
type ProgramGraph struct {
	location    Location
	vars        []expr.Value
	varTypes    []expr.Type
	effects     []compiledEffect
	transitions []map[transitionKey]*expr.Compiled[Var]
	order       [][]transitionKey // per-location insertion order, mirrors transitions
}

// Clone returns an independent run sharing the immutable tables.
func (g *ProgramGraph) Clone() *ProgramGraph {
	vars := make([]expr.Value, len(g.vars))
	copy(vars, g.vars)
	return &ProgramGraph{
		location:    g.location,
		vars:        vars,
		varTypes:    g.varTypes,
		effects:     g.effects,
		transitions: g.transitions,
		order:       g.order,
	}
}

func (g *ProgramGraph) Location() Location { return g.location }

func (g *ProgramGraph) valuation() expr.MapValuation[Var] {
	m := make(expr.MapValuation[Var], len(g.vars))
	for i, v := range g.vars {
		m[Var(i)] = v
	}
	return m
}

// Valuation exposes the current variable assignment, used by the Channel
// System when evaluating a send's message expression directly against its
// already-compiled form.
func (g *ProgramGraph) Valuation() expr.MapValuation[Var] { return g.valuation() }

// Eval evaluates an expression in the current valuation.
func (g *ProgramGraph) Eval(e Expr) (expr.Value, bool) {
	compiled, err := expr.Compile(e, func(v Var) (expr.Type, bool) {
		if int(v) < 0 || int(v) >= len(g.varTypes) {
			return expr.Type{}, false
		}
		return g.varTypes[v], true
	})
	if err != nil {
		return expr.Value{}, false
	}
	return compiled.Eval(g.valuation())
}

// Var returns the current value of a variable.
func (g *ProgramGraph) Var(v Var) (expr.Value, bool) {
	if int(v) < 0 || int(v) >= len(g.vars) {
		return expr.Value{}, false
	}
	return g.vars[v], true
}

// PossibleTransitions returns the transitions enabled from the current
// location, in the insertion order the builder recorded them.
func (g *ProgramGraph) PossibleTransitions() []Transition {
	val := g.valuation()
	locTransitions := g.transitions[g.location]
	var out []Transition
	for _, key := range g.order[g.location] {
		guard := locTransitions[key]
		if guard == nil {
			out = append(out, Transition{Action: key.action, Post: key.post})
			continue
		}
		v, ok := guard.Eval(val)
		if ok && v.Kind() == expr.KindBool && v.Bool() {
			out = append(out, Transition{Action: key.action, Post: key.post})
		}
	}
	return out
}

// Transition fires the given (action, post) edge, which must currently be
// enabled. For ordinary actions, every assignment reads the pre-transition
// valuation; writes are applied only after every RHS has been evaluated.
func (g *ProgramGraph) Transition(action Action, post Location) error {
	if !g.enabled(action, post) {
		return errf("transition (%d -> %d) not enabled", action, post)
	}
	if action != EPSILON {
		eff := g.effects[action]
		if eff.kind == effectOrdinary {
			val := g.valuation()
			results := make([]expr.Value, len(eff.assign))
			oks := make([]bool, len(eff.assign))
			for i, a := range eff.assign {
				results[i], oks[i] = a.compiled.Eval(val)
			}
			for i, a := range eff.assign {
				if oks[i] {
					g.vars[a.v] = results[i]
				}
			}
		}
		// effectSend/effectReceive are applied by the Channel System wrapper.
	}
	g.location = post
	return nil
}

func (g *ProgramGraph) enabled(action Action, post Location) bool {
	guard, ok := g.transitions[g.location][transitionKey{action: action, post: post}]
	if !ok {
		return false
	}
	if guard == nil {
		return true
	}
	v, ok := guard.Eval(g.valuation())
	return ok && v.Kind() == expr.KindBool && v.Bool()
}

// MonteCarlo chooses uniformly at random among enabled transitions, fires
// it, and returns the action taken (ok is false at deadlock).
func (g *ProgramGraph) MonteCarlo(rng *rand.Rand) (Action, bool) {
	possible := g.PossibleTransitions()
	if len(possible) == 0 {
		return 0, false
	}
	chosen := possible[rng.Intn(len(possible))]
	if err := g.Transition(chosen.Action, chosen.Post); err != nil {
		return 0, false
	}
	return chosen.Action, true
}

// Send returns the compiled message expression of a send action, used by
// Channel System composition to evaluate the payload.
func (g *ProgramGraph) Send(action Action) (expr.Compiled[Var], bool) {
	if int(action) < 0 || int(action) >= len(g.effects) || g.effects[action].kind != effectSend {
		return expr.Compiled[Var]{}, false
	}
	return g.effects[action].msg, true
}

// ReceiveTarget returns the variable a receive action writes into.
func (g *ProgramGraph) ReceiveTarget(action Action) (Var, bool) {
	if int(action) < 0 || int(action) >= len(g.effects) || g.effects[action].kind != effectReceive {
		return 0, false
	}
	return g.effects[action].target, true
}

// SetVar writes a value into a variable, used by the Channel System when
// completing a receive.
func (g *ProgramGraph) SetVar(v Var, val expr.Value) {
	if int(v) >= 0 && int(v) < len(g.vars) {
		g.vars[v] = val
	}
}
