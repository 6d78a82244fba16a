package pg

import (
	"math/rand"
	"testing"

	"scan/internal/expr"
)

func mustBuild(t *testing.T, b *Builder) *ProgramGraph {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func TestSimplePg(t *testing.T) {
	b := NewBuilder()
	pre := b.InitialLocation()
	action := b.NewAction()
	post := b.NewLocation()
	if err := b.AddTransition(pre, action, post, nil); err != nil {
		t.Fatalf("add transition: %v", err)
	}
	g := mustBuild(t, b)

	possible := g.PossibleTransitions()
	if len(possible) != 1 || possible[0].Action != action || possible[0].Post != post {
		t.Fatalf("unexpected possible transitions: %+v", possible)
	}
	if err := g.Transition(action, post); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if g.Location() != post {
		t.Fatalf("expected location %d, got %d", post, g.Location())
	}
	if len(g.PossibleTransitions()) != 0 {
		t.Fatal("expected deadlock at post location")
	}
}

func TestConditionPg(t *testing.T) {
	b := NewBuilder()
	pre := b.InitialLocation()
	action := b.NewAction()
	post := b.NewLocation()

	sum := expr.Sum[Var](expr.Const[Var](expr.VInt(1)), expr.Const[Var](expr.VInt(2)), expr.Const[Var](expr.VInt(3)))
	guard := expr.Implies(
		expr.LessEq(sum, expr.Const[Var](expr.VInt(100))),
		expr.Greater(expr.Const[Var](expr.VInt(5)), expr.Const[Var](expr.VInt(6))),
	)
	if err := b.AddTransition(pre, action, post, &guard); err != nil {
		t.Fatalf("add transition: %v", err)
	}
	g := mustBuild(t, b)

	// 1+2+3 <= 100 is true, 5 > 6 is false, so implies is false: disabled.
	if len(g.PossibleTransitions()) != 0 {
		t.Fatal("expected the guarded transition to be disabled")
	}
}

func TestLongPg(t *testing.T) {
	b := NewBuilder()
	pre := b.InitialLocation()
	action := b.NewAction()
	for i := 0; i < 10; i++ {
		post := b.NewLocation()
		if err := b.AddTransition(pre, action, post, nil); err != nil {
			t.Fatalf("add transition %d: %v", i, err)
		}
		pre = post
	}
	g := mustBuild(t, b)

	rng := rand.New(rand.NewSource(1))
	steps := 0
	for {
		if _, ok := g.MonteCarlo(rng); !ok {
			break
		}
		steps++
		if steps > 100 {
			t.Fatal("runaway execution, expected deadlock within 10 steps")
		}
	}
	if steps != 10 {
		t.Fatalf("expected exactly 10 steps to reach the terminal location, got %d", steps)
	}
}

func TestCounterPg(t *testing.T) {
	b := NewBuilder()
	initial := b.InitialLocation()
	action := b.NewAction()
	v, err := b.NewVar(expr.Const[Var](expr.VInt(0)))
	if err != nil {
		t.Fatalf("new var: %v", err)
	}
	sum := expr.Sum[Var](expr.Var[Var](v), expr.Const[Var](expr.VInt(1)))
	if err := b.AddEffect(action, v, sum); err != nil {
		t.Fatalf("add effect: %v", err)
	}
	for counter := 0; counter < 10; counter++ {
		guard := expr.Equal(expr.Var[Var](v), expr.Const[Var](expr.VInt(int32(counter))))
		if err := b.AddTransition(initial, action, initial, &guard); err != nil {
			t.Fatalf("add transition %d: %v", counter, err)
		}
	}
	g := mustBuild(t, b)

	for i := 0; i < 10; i++ {
		possible := g.PossibleTransitions()
		if len(possible) != 1 {
			t.Fatalf("step %d: expected exactly one enabled transition, got %d", i, len(possible))
		}
		if err := g.Transition(possible[0].Action, possible[0].Post); err != nil {
			t.Fatalf("step %d: transition: %v", i, err)
		}
		val, ok := g.Var(v)
		if !ok || val.Int() != int32(i+1) {
			t.Fatalf("step %d: expected counter %d, got %v", i, i+1, val)
		}
	}
	if len(g.PossibleTransitions()) != 0 {
		t.Fatal("expected deadlock once counter exceeds every guarded value")
	}
}

func TestEpsilonCannotCarryEffects(t *testing.T) {
	b := NewBuilder()
	v, err := b.NewVar(expr.Const[Var](expr.VInt(0)))
	if err != nil {
		t.Fatalf("new var: %v", err)
	}
	if err := b.AddEffect(EPSILON, v, expr.Const[Var](expr.VInt(1))); err == nil {
		t.Fatal("expected an error adding an effect to the epsilon action")
	}
}

func TestGuardMustBeBoolean(t *testing.T) {
	b := NewBuilder()
	pre := b.InitialLocation()
	action := b.NewAction()
	post := b.NewLocation()
	guard := expr.Const[Var](expr.VInt(1))
	if err := b.AddTransition(pre, action, post, &guard); err == nil {
		t.Fatal("expected a type error for a non-boolean guard")
	}
}
