// Package cs implements the Channel System: a composition of Program Graphs
// communicating over a shared channel table, plus the event stream and
// deterministic-transition fast path the statistical scheduler relies on.
package cs

import (
	"fmt"
	"math/rand"

	"scan/internal/expr"
	"scan/internal/pg"
)

// PgID identifies a member Program Graph within the composition.
type PgID int

// ChannelID identifies a channel within the composition's channel table.
type ChannelID int

// Channel describes a typed, possibly-bounded FIFO. Capacity 0 means
// rendezvous; capacity >= 1 is an asynchronous bounded queue.
type Channel struct {
	Capacity int
	MsgType  expr.Type
}

// EventKind tags the four event shapes a CS transition can emit.
type EventKind uint8

const (
	EventSend EventKind = iota
	EventReceive
	EventProbeEmptyQueue
	EventProbeFullQueue
)

// Event is emitted whenever a CS transition touches a channel.
type Event struct {
	PgID    PgID
	Channel ChannelID
	Kind    EventKind
	Value   expr.Value // only meaningful for EventSend/EventReceive
}

type bindingKind uint8

const (
	bindSend bindingKind = iota
	bindReceive
)

type binding struct {
	channel ChannelID
	kind    bindingKind
}

type bindingKey struct {
	pg     PgID
	action pg.Action
}

// CsError is the Channel-System-specific error taxonomy of spec.md §4.3,
// layered over the underlying pg.PgError for per-PG failures.
type CsError struct{ msg string }

func (e *CsError) Error() string { return e.msg }

func errChannelFull(c ChannelID) *CsError {
	return &CsError{msg: fmt.Sprintf("channel %d is full", c)}
}
func errChannelEmpty(c ChannelID) *CsError {
	return &CsError{msg: fmt.Sprintf("channel %d is empty", c)}
}
func errNoRendezvous(c ChannelID) *CsError {
	return &CsError{msg: fmt.Sprintf("no matching rendezvous partner on channel %d", c)}
}
func errNotEnabled() *CsError { return &CsError{msg: "transition not enabled"} }

// Builder composes member Program Graph builders, a channel table, and the
// PG-action-to-channel bindings, then produces an immutable ChannelSystem.
type Builder struct {
	pgBuilders []*pg.Builder
	channels   []Channel
	bindings   map[bindingKey]binding
}

func NewBuilder() *Builder {
	return &Builder{bindings: make(map[bindingKey]binding)}
}

// AddPg registers a member Program Graph builder and returns its PgID.
func (b *Builder) AddPg(pb *pg.Builder) PgID {
	id := PgID(len(b.pgBuilders))
	b.pgBuilders = append(b.pgBuilders, pb)
	return id
}

// NewChannel adds a channel to the table.
func (b *Builder) NewChannel(capacity int, msgType expr.Type) ChannelID {
	id := ChannelID(len(b.channels))
	b.channels = append(b.channels, Channel{Capacity: capacity, MsgType: msgType})
	return id
}

// BindSend records that the given PG's send action communicates over the
// given channel.
func (b *Builder) BindSend(p PgID, action pg.Action, c ChannelID) error {
	if int(c) < 0 || int(c) >= len(b.channels) {
		return fmt.Errorf("cs: missing channel %d", c)
	}
	b.bindings[bindingKey{pg: p, action: action}] = binding{channel: c, kind: bindSend}
	return nil
}

// BindReceive records that the given PG's receive action communicates over
// the given channel.
func (b *Builder) BindReceive(p PgID, action pg.Action, c ChannelID) error {
	if int(c) < 0 || int(c) >= len(b.channels) {
		return fmt.Errorf("cs: missing channel %d", c)
	}
	b.bindings[bindingKey{pg: p, action: action}] = binding{channel: c, kind: bindReceive}
	return nil
}

// Build finalizes every member PG builder and produces the ChannelSystem.
func (b *Builder) Build() (*ChannelSystem, error) {
	pgs := make([]*pg.ProgramGraph, len(b.pgBuilders))
	for i, pb := range b.pgBuilders {
		g, err := pb.Build()
		if err != nil {
			return nil, fmt.Errorf("cs: building pg %d: %w", i, err)
		}
		pgs[i] = g
	}
	queues := make([][]expr.Value, len(b.channels))
	bindings := make(map[bindingKey]binding, len(b.bindings))
	for k, v := range b.bindings {
		bindings[k] = v
	}
	return &ChannelSystem{
		pgs:      pgs,
		channels: append([]Channel(nil), b.channels...),
		bindings: bindings,
		queues:   queues,
	}, nil
}

// Transition is one enabled edge exposed by PossibleTransitions.
type Transition struct {
	Pg     PgID
	Action pg.Action
	Post   pg.Location
}

// ChannelSystem is the composed, runnable system: member PGs' mutable
// per-run state plus the channels' queue contents.
type ChannelSystem struct {
	pgs      []*pg.ProgramGraph
	channels []Channel
	bindings map[bindingKey]binding
	queues   [][]expr.Value
	lastEvt  *Event
}

// Clone returns an independent run.
func (cs *ChannelSystem) Clone() *ChannelSystem {
	pgs := make([]*pg.ProgramGraph, len(cs.pgs))
	for i, g := range cs.pgs {
		pgs[i] = g.Clone()
	}
	queues := make([][]expr.Value, len(cs.queues))
	for i, q := range cs.queues {
		queues[i] = append([]expr.Value(nil), q...)
	}
	return &ChannelSystem{pgs: pgs, channels: cs.channels, bindings: cs.bindings, queues: queues}
}

func (cs *ChannelSystem) binding(p PgID, a pg.Action) (binding, bool) {
	bd, ok := cs.bindings[bindingKey{pg: p, action: a}]
	return bd, ok
}

// enabledLocal reports whether a (pg,action,post) edge is currently
// enabled given channel state, without firing it.
func (cs *ChannelSystem) enabledLocal(p PgID, t pg.Transition) bool {
	bd, bound := cs.binding(p, t.Action)
	if !bound {
		return true
	}
	ch := cs.channels[bd.channel]
	switch bd.kind {
	case bindSend:
		g := cs.pgs[p]
		if compiled, ok := g.Send(t.Action); ok {
			if _, defined := compiled.Eval(valuationOf(g)); !defined {
				return false
			}
		}
		if ch.Capacity == 0 {
			return cs.hasMatchingReceiver(p, bd.channel)
		}
		return len(cs.queues[bd.channel]) < ch.Capacity
	default: // bindReceive
		if ch.Capacity == 0 {
			return cs.hasMatchingSender(p, bd.channel)
		}
		return len(cs.queues[bd.channel]) > 0
	}
}

func (cs *ChannelSystem) hasMatchingReceiver(sender PgID, c ChannelID) bool {
	for i, g := range cs.pgs {
		if PgID(i) == sender {
			continue
		}
		for _, t := range g.PossibleTransitions() {
			if bd, ok := cs.binding(PgID(i), t.Action); ok && bd.kind == bindReceive && bd.channel == c {
				return true
			}
		}
	}
	return false
}

func (cs *ChannelSystem) hasMatchingSender(receiver PgID, c ChannelID) bool {
	for i, g := range cs.pgs {
		if PgID(i) == receiver {
			continue
		}
		for _, t := range g.PossibleTransitions() {
			if bd, ok := cs.binding(PgID(i), t.Action); ok && bd.kind == bindSend && bd.channel == c {
				return true
			}
		}
	}
	return false
}

// PossibleTransitions lists every currently enabled (pg, action, post)
// triple across member PGs.
func (cs *ChannelSystem) PossibleTransitions() []Transition {
	var out []Transition
	for i, g := range cs.pgs {
		for _, t := range g.PossibleTransitions() {
			if cs.enabledLocal(PgID(i), t) {
				out = append(out, Transition{Pg: PgID(i), Action: t.Action, Post: t.Post})
			}
		}
	}
	return out
}

// ResolveDeterministicTransitions fires, in a loop, any PG's unique enabled
// non-communicating (no channel binding) transition, collapsing internal
// fan-out before branching is exposed to the scheduler.
func (cs *ChannelSystem) ResolveDeterministicTransitions() {
	for {
		fired := false
		for i, g := range cs.pgs {
			possible := g.PossibleTransitions()
			var local []pg.Transition
			for _, t := range possible {
				if _, bound := cs.binding(PgID(i), t.Action); !bound {
					local = append(local, t)
				}
			}
			if len(local) == 1 {
				_ = g.Transition(local[0].Action, local[0].Post)
				fired = true
			}
		}
		if !fired {
			return
		}
	}
}

// Transition fires the given edge, which must currently be enabled, and
// returns the Event produced (nil if the action touched no channel).
func (cs *ChannelSystem) Transition(p PgID, action pg.Action, post pg.Location) (*Event, error) {
	g := cs.pgs[p]
	bd, bound := cs.binding(p, action)
	if !bound {
		if err := g.Transition(action, post); err != nil {
			return nil, err
		}
		cs.lastEvt = nil
		return nil, nil
	}

	ch := cs.channels[bd.channel]
	switch bd.kind {
	case bindSend:
		compiled, ok := g.Send(action)
		if !ok {
			return nil, errNotEnabled()
		}
		val, ok := compiled.Eval(valuationOf(g))
		if !ok {
			return nil, errNotEnabled()
		}
		if ch.Capacity == 0 {
			ri, rt, ok := cs.findReceiver(p, bd.channel)
			if !ok {
				return nil, errNoRendezvous(bd.channel)
			}
			receiver := cs.pgs[ri]
			rtarget, _ := receiver.ReceiveTarget(rt.Action)
			receiver.SetVar(rtarget, val)
			if err := receiver.Transition(rt.Action, rt.Post); err != nil {
				return nil, err
			}
			if err := g.Transition(action, post); err != nil {
				return nil, err
			}
		} else {
			if len(cs.queues[bd.channel]) >= ch.Capacity {
				return nil, errChannelFull(bd.channel)
			}
			cs.queues[bd.channel] = append(cs.queues[bd.channel], val)
			if err := g.Transition(action, post); err != nil {
				return nil, err
			}
		}
		evt := &Event{PgID: p, Channel: bd.channel, Kind: EventSend, Value: val}
		cs.lastEvt = evt
		return evt, nil

	default: // bindReceive
		if ch.Capacity == 0 {
			// The paired rendezvous send, when it fires, drives this side's
			// transition directly (see the bindSend branch above); a bare
			// Transition call on the receive side only happens if the
			// scheduler chose the receiver's own triple, which we resolve
			// symmetrically by locating the matching sender.
			si, st, ok := cs.findSender(p, bd.channel)
			if !ok {
				return nil, errNoRendezvous(bd.channel)
			}
			sender := cs.pgs[si]
			scompiled, ok := sender.Send(st.Action)
			if !ok {
				return nil, errNotEnabled()
			}
			val, ok := scompiled.Eval(valuationOf(sender))
			if !ok {
				return nil, errNotEnabled()
			}
			target, _ := g.ReceiveTarget(action)
			g.SetVar(target, val)
			if err := g.Transition(action, post); err != nil {
				return nil, err
			}
			if err := sender.Transition(st.Action, st.Post); err != nil {
				return nil, err
			}
			evt := &Event{PgID: p, Channel: bd.channel, Kind: EventReceive, Value: val}
			cs.lastEvt = evt
			return evt, nil
		}
		if len(cs.queues[bd.channel]) == 0 {
			return nil, errChannelEmpty(bd.channel)
		}
		val := cs.queues[bd.channel][0]
		cs.queues[bd.channel] = cs.queues[bd.channel][1:]
		target, _ := g.ReceiveTarget(action)
		g.SetVar(target, val)
		if err := g.Transition(action, post); err != nil {
			return nil, err
		}
		evt := &Event{PgID: p, Channel: bd.channel, Kind: EventReceive, Value: val}
		cs.lastEvt = evt
		return evt, nil
	}
}

func (cs *ChannelSystem) findReceiver(sender PgID, c ChannelID) (PgID, pg.Transition, bool) {
	for i, g := range cs.pgs {
		if PgID(i) == sender {
			continue
		}
		for _, t := range g.PossibleTransitions() {
			if bd, ok := cs.binding(PgID(i), t.Action); ok && bd.kind == bindReceive && bd.channel == c {
				return PgID(i), t, true
			}
		}
	}
	return 0, pg.Transition{}, false
}

func (cs *ChannelSystem) findSender(receiver PgID, c ChannelID) (PgID, pg.Transition, bool) {
	for i, g := range cs.pgs {
		if PgID(i) == receiver {
			continue
		}
		for _, t := range g.PossibleTransitions() {
			if bd, ok := cs.binding(PgID(i), t.Action); ok && bd.kind == bindSend && bd.channel == c {
				return PgID(i), t, true
			}
		}
	}
	return 0, pg.Transition{}, false
}

// valuationOf exposes a ProgramGraph's current variable assignment, used to
// evaluate a send action's compiled message expression.
func valuationOf(g *pg.ProgramGraph) expr.MapValuation[pg.Var] {
	return g.Valuation()
}

// LastEvent returns the event produced by the most recent Transition call.
func (cs *ChannelSystem) LastEvent() *Event { return cs.lastEvt }

// Predicate is a Boolean expression paired with the PgID that owns it.
// Channel System predicates are expressed over the member PGs' own
// variables rather than a separate port-value table, so callers provide a
// per-PG predicate alongside its owning PgID.
type Predicate struct {
	Pg   PgID
	Expr pg.Expr
}

// EvalPredicates evaluates each predicate in its owning PG's current
// valuation; an undefined or non-Boolean result counts as false.
func (cs *ChannelSystem) EvalPredicates(preds []Predicate) []bool {
	out := make([]bool, len(preds))
	for i, p := range preds {
		v, ok := cs.pgs[p.Pg].Eval(p.Expr)
		out[i] = ok && v.Kind() == expr.KindBool && v.Bool()
	}
	return out
}

// Pg returns the i-th member ProgramGraph for inspection (e.g. Tracer port
// values).
func (cs *ChannelSystem) Pg(i PgID) *pg.ProgramGraph { return cs.pgs[i] }

func (cs *ChannelSystem) NumPgs() int { return len(cs.pgs) }

// MonteCarlo resolves deterministic steps, then chooses uniformly among the
// remaining branching transitions, firing it. A fired transition with no
// observable event (an internal, unbound action on a PG that still had more
// than one enabled choice) is not itself the step the caller sees: the
// search continues from the resulting state, mirroring the
// resolve-then-enumerate-then-recurse-on-no-event control flow a Channel
// System trace follows. ok is false once the whole composition deadlocks.
func (cs *ChannelSystem) MonteCarlo(rng *rand.Rand) (*Event, bool) {
	for {
		cs.ResolveDeterministicTransitions()
		possible := cs.PossibleTransitions()
		if len(possible) == 0 {
			return nil, false
		}
		chosen := possible[rng.Intn(len(possible))]
		evt, err := cs.Transition(chosen.Pg, chosen.Action, chosen.Post)
		if err != nil {
			return nil, false
		}
		if evt != nil {
			return evt, true
		}
	}
}
