// Package tsys adapts Program Graphs and Channel Systems to a common
// transition-system contract the statistical scheduler drives, plus the
// Tracer contract used to stream observed traces.
package tsys

import (
	"math/rand"

	"scan/internal/cs"
	"scan/internal/expr"
	"scan/internal/numset"
	"scan/internal/pg"
	"scan/internal/pmtl"
)

// TransitionSystem is anything the scheduler can step through a Monte Carlo
// random walk, labeling each reached state against the Oracle's predicates.
type TransitionSystem[Event any] interface {
	// Transition attempts one step, returning ok=false at deadlock.
	Transition(rng *rand.Rand) (event Event, ok bool)
	Time() numset.Time
	Labels() []bool
	State() []expr.Value
}

// Tracer streams an observed run, one state at a time, to an external sink
// (e.g. a trace file or the progress dashboard).
type Tracer[Event any] interface {
	Init()
	Trace(event Event, time numset.Time, ports []expr.Value)
	Finalize(outcome RunOutcome)
}

// RunOutcomeKind classifies how a single run of Experiment ended.
type RunOutcomeKind uint8

const (
	OutcomeSuccess RunOutcomeKind = iota
	OutcomeFail
	OutcomeIncomplete
)

// RunOutcome is the verdict of one run: a deadlock with every assumption and
// guarantee still undecided-true is Success; a guarantee decided false is
// Fail(index); cancellation, an assumption going undecided, or a run
// exceeding its step/duration cap is Incomplete.
type RunOutcome struct {
	Kind             RunOutcomeKind
	GuaranteeIndex   int
	GuaranteeName    string
	IncompleteReason string
}

// Limits bounds a single run, guarding against a system that never
// deadlocks and never violates a guarantee. Zero means unbounded.
type Limits struct {
	// MaxSteps caps the number of transitions a run may take.
	MaxSteps uint64
	// MaxDuration caps the TransitionSystem's own simulated time (the value
	// sys.Time() reports), not wall-clock time.
	MaxDuration numset.Time
}

// Experiment drives one run of sys to completion: step, label, feed the
// Oracle, check assumptions/guarantees, repeat until deadlock, a decided
// guarantee, an undecided assumption, a cap in limits is exceeded, or
// cancellation via running.
func Experiment[Event any](
	sys TransitionSystem[Event],
	rng *rand.Rand,
	oracle *pmtl.Oracle,
	tracer Tracer[Event],
	running *bool,
	limits Limits,
) RunOutcome {
	if tracer != nil {
		tracer.Init()
	}
	var result RunOutcome
	var steps uint64
	for {
		event, ok := sys.Transition(rng)
		if !ok {
			result = RunOutcome{Kind: OutcomeSuccess}
			break
		}
		steps++
		labels := sys.Labels()
		t := sys.Time()
		if tracer != nil {
			tracer.Trace(event, t, sys.State())
		}
		oracle.Update(labels, t)
		if running != nil && !*running {
			result = RunOutcome{Kind: OutcomeIncomplete, IncompleteReason: "cancelled"}
			break
		}
		if reason, violated := oracle.OutputAssumes(); violated {
			result = RunOutcome{Kind: OutcomeIncomplete, IncompleteReason: reason}
			break
		}
		if idx, name, violated := oracle.OutputGuarantees(); violated {
			result = RunOutcome{Kind: OutcomeFail, GuaranteeIndex: idx, GuaranteeName: name}
			break
		}
		if limits.MaxSteps > 0 && steps >= limits.MaxSteps {
			result = RunOutcome{Kind: OutcomeIncomplete, IncompleteReason: "max steps exceeded"}
			break
		}
		if limits.MaxDuration > 0 && t >= limits.MaxDuration {
			result = RunOutcome{Kind: OutcomeIncomplete, IncompleteReason: "max duration exceeded"}
			break
		}
	}
	if tracer != nil {
		tracer.Finalize(result)
	}
	return result
}

// PgModel adapts a bare Program Graph (no channels) into a TransitionSystem,
// for checking properties of a single sequential process.
type PgModel struct {
	g          *pg.ProgramGraph
	predicates []pg.Expr
}

func NewPgModel(g *pg.ProgramGraph, predicates []pg.Expr) *PgModel {
	return &PgModel{g: g, predicates: predicates}
}

func (m *PgModel) Transition(rng *rand.Rand) (pg.Action, bool) {
	return m.g.MonteCarlo(rng)
}

// Time is always 0: a bare Program Graph has no notion of elapsed duration,
// only a sequence of discrete steps.
func (m *PgModel) Time() numset.Time { return 0 }

func (m *PgModel) Labels() []bool {
	labels := make([]bool, len(m.predicates))
	for i, p := range m.predicates {
		v, ok := m.g.Eval(p)
		labels[i] = ok && v.Kind() == expr.KindBool && v.Bool()
	}
	return labels
}

func (m *PgModel) State() []expr.Value {
	var out []expr.Value
	for i := 0; ; i++ {
		v, ok := m.g.Var(pg.Var(i))
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// CsModel adapts a Channel System into a TransitionSystem, tracking elapsed
// ticks as the number of observable events seen so far.
type CsModel struct {
	system     *cs.ChannelSystem
	predicates []cs.Predicate
	tick       numset.Time
}

func NewCsModel(system *cs.ChannelSystem, predicates []cs.Predicate) *CsModel {
	return &CsModel{system: system, predicates: predicates}
}

func (m *CsModel) Transition(rng *rand.Rand) (*cs.Event, bool) {
	evt, ok := m.system.MonteCarlo(rng)
	if ok {
		m.tick++
	}
	return evt, ok
}

func (m *CsModel) Time() numset.Time { return m.tick }

func (m *CsModel) Labels() []bool { return m.system.EvalPredicates(m.predicates) }

func (m *CsModel) State() []expr.Value {
	var out []expr.Value
	for i := 0; i < m.system.NumPgs(); i++ {
		g := m.system.Pg(cs.PgID(i))
		for j := 0; ; j++ {
			v, ok := g.Var(pg.Var(j))
			if !ok {
				break
			}
			out = append(out, v)
		}
	}
	return out
}
