package tsys

import (
	"math/rand"
	"testing"

	"scan/internal/cs"
	"scan/internal/expr"
	"scan/internal/pg"
	"scan/internal/pmtl"
)

// buildCounterPg mirrors internal/pg's own counter scenario: a self-loop
// action that increments a variable ten times before deadlocking.
func buildCounterPg(t *testing.T) (*pg.ProgramGraph, pg.Var) {
	t.Helper()
	b := pg.NewBuilder()
	initial := b.InitialLocation()
	action := b.NewAction()
	v, err := b.NewVar(expr.Const[pg.Var](expr.VInt(0)))
	if err != nil {
		t.Fatalf("new var: %v", err)
	}
	sum := expr.Sum[pg.Var](expr.Var[pg.Var](v), expr.Const[pg.Var](expr.VInt(1)))
	if err := b.AddEffect(action, v, sum); err != nil {
		t.Fatalf("add effect: %v", err)
	}
	for counter := 0; counter < 10; counter++ {
		guard := expr.Equal(expr.Var[pg.Var](v), expr.Const[pg.Var](expr.VInt(int32(counter))))
		if err := b.AddTransition(initial, action, initial, &guard); err != nil {
			t.Fatalf("add transition %d: %v", counter, err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g, v
}

func TestPgModelExperimentSucceedsWhenGuaranteeNeverViolated(t *testing.T) {
	g, v := buildCounterPg(t)
	lessThanEleven := expr.Less(expr.Var[pg.Var](v), expr.Const[pg.Var](expr.VInt(11)))
	model := NewPgModel(g, []pg.Expr{lessThanEleven})

	oracle := pmtl.NewOracle(nil, []pmtl.Tracked{
		{Name: "counter stays below eleven", Formula: pmtl.Historically(pmtl.Unbounded, pmtl.Atom(0))},
	})

	running := true
	outcome := Experiment[pg.Action](model, rand.New(rand.NewSource(1)), oracle, nil, &running, Limits{})
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %+v", outcome)
	}
}

func TestPgModelExperimentFailsWhenGuaranteeViolated(t *testing.T) {
	g, v := buildCounterPg(t)
	lessThanFive := expr.Less(expr.Var[pg.Var](v), expr.Const[pg.Var](expr.VInt(5)))
	model := NewPgModel(g, []pg.Expr{lessThanFive})

	oracle := pmtl.NewOracle(nil, []pmtl.Tracked{
		{Name: "counter stays below five", Formula: pmtl.Historically(pmtl.Unbounded, pmtl.Atom(0))},
	})

	running := true
	outcome := Experiment[pg.Action](model, rand.New(rand.NewSource(1)), oracle, nil, &running, Limits{})
	if outcome.Kind != OutcomeFail {
		t.Fatalf("expected fail, got %+v", outcome)
	}
	if outcome.GuaranteeName != "counter stays below five" {
		t.Fatalf("unexpected guarantee name: %q", outcome.GuaranteeName)
	}
}

// buildLoopingPg is a single unconditional self-loop: it never deadlocks,
// so only a step cap can end a run against it.
func buildLoopingPg(t *testing.T) *pg.ProgramGraph {
	t.Helper()
	b := pg.NewBuilder()
	initial := b.InitialLocation()
	action := b.NewAction()
	if err := b.AddTransition(initial, action, initial, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func TestExperimentStopsAtMaxSteps(t *testing.T) {
	g := buildLoopingPg(t)
	model := NewPgModel(g, nil)
	oracle := pmtl.NewOracle(nil, nil)

	running := true
	outcome := Experiment[pg.Action](model, rand.New(rand.NewSource(1)), oracle, nil, &running, Limits{MaxSteps: 5})
	if outcome.Kind != OutcomeIncomplete {
		t.Fatalf("expected incomplete once the step cap is hit, got %+v", outcome)
	}
	if outcome.IncompleteReason != "max steps exceeded" {
		t.Fatalf("unexpected incomplete reason: %q", outcome.IncompleteReason)
	}
}

// buildLoopingChannelSystem is a two-PG sender/receiver pair, each a single
// self-loop, that keeps alternating send/receive over the bounded channel
// indefinitely, so only a duration cap can end a run against it.
func buildLoopingChannelSystem(t *testing.T) *cs.ChannelSystem {
	t.Helper()
	senderB := pg.NewBuilder()
	senderLoc := senderB.InitialLocation()
	sendAction, err := senderB.NewSend(expr.Const[pg.Var](expr.VInt(1)))
	if err != nil {
		t.Fatalf("new send: %v", err)
	}
	if err := senderB.AddTransition(senderLoc, sendAction, senderLoc, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}

	receiverB := pg.NewBuilder()
	receiverLoc := receiverB.InitialLocation()
	rv, err := receiverB.NewVar(expr.Const[pg.Var](expr.VInt(0)))
	if err != nil {
		t.Fatalf("new var: %v", err)
	}
	recvAction, err := receiverB.NewReceive(rv)
	if err != nil {
		t.Fatalf("new receive: %v", err)
	}
	if err := receiverB.AddTransition(receiverLoc, recvAction, receiverLoc, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}

	csB := cs.NewBuilder()
	senderID := csB.AddPg(senderB)
	receiverID := csB.AddPg(receiverB)
	channel := csB.NewChannel(1, expr.Int())
	if err := csB.BindSend(senderID, sendAction, channel); err != nil {
		t.Fatalf("bind send: %v", err)
	}
	if err := csB.BindReceive(receiverID, recvAction, channel); err != nil {
		t.Fatalf("bind receive: %v", err)
	}
	system, err := csB.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return system
}

func TestExperimentStopsAtMaxDuration(t *testing.T) {
	system := buildLoopingChannelSystem(t)
	model := NewCsModel(system, nil)
	oracle := pmtl.NewOracle(nil, nil)

	running := true
	outcome := Experiment[*cs.Event](model, rand.New(rand.NewSource(1)), oracle, nil, &running, Limits{MaxDuration: 5})
	if outcome.Kind != OutcomeIncomplete {
		t.Fatalf("expected incomplete once the duration cap is hit, got %+v", outcome)
	}
	if outcome.IncompleteReason != "max duration exceeded" {
		t.Fatalf("unexpected incomplete reason: %q", outcome.IncompleteReason)
	}
}

func TestCsModelLabelsEvaluatePerPg(t *testing.T) {
	senderB := pg.NewBuilder()
	senderPre := senderB.InitialLocation()
	senderPost := senderB.NewLocation()
	sendAction, err := senderB.NewSend(expr.Const[pg.Var](expr.VInt(1)))
	if err != nil {
		t.Fatalf("new send: %v", err)
	}
	if err := senderB.AddTransition(senderPre, sendAction, senderPost, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}

	receiverB := pg.NewBuilder()
	receiverPre := receiverB.InitialLocation()
	receiverPost := receiverB.NewLocation()
	rv, err := receiverB.NewVar(expr.Const[pg.Var](expr.VInt(0)))
	if err != nil {
		t.Fatalf("new var: %v", err)
	}
	recvAction, err := receiverB.NewReceive(rv)
	if err != nil {
		t.Fatalf("new receive: %v", err)
	}
	if err := receiverB.AddTransition(receiverPre, recvAction, receiverPost, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}

	csB := cs.NewBuilder()
	senderID := csB.AddPg(senderB)
	receiverID := csB.AddPg(receiverB)
	channel := csB.NewChannel(0, expr.Int())
	if err := csB.BindSend(senderID, sendAction, channel); err != nil {
		t.Fatalf("bind send: %v", err)
	}
	if err := csB.BindReceive(receiverID, recvAction, channel); err != nil {
		t.Fatalf("bind receive: %v", err)
	}
	system, err := csB.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	received := expr.Equal(expr.Var[pg.Var](rv), expr.Const[pg.Var](expr.VInt(1)))
	model := NewCsModel(system, []cs.Predicate{{Pg: receiverID, Expr: received}})

	if model.Labels()[0] {
		t.Fatal("expected the predicate to be false before any transition")
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		if _, ok := model.Transition(rng); !ok {
			break
		}
	}
	if !model.Labels()[0] {
		t.Fatal("expected the receiver's variable to have been set by the rendezvous")
	}
}
