package pmtl

import (
	"testing"

	"scan/internal/numset"
)

// TestOnceBoundedWindow mirrors the documented scenario: Once[0,1]{p} over
// the trace (p=false,t=0), (p=true,t=1), (p=false,t=2), (p=false,t=3)
// should read false, true, true, false.
func TestOnceBoundedWindow(t *testing.T) {
	p := Atom(0)
	once := Once(Bound{Lo: 0, Hi: 1}, p)
	o := NewOracle(nil, []Tracked{{Name: "once_p", Formula: once}})

	trace := []struct {
		label bool
		tick  uint64
		want  bool
	}{
		{false, 0, false},
		{true, 1, true},
		{false, 2, true},
		{false, 3, false},
	}

	for _, step := range trace {
		o.Update([]bool{step.label}, numset.Time(step.tick))
		idx, _, violated := o.OutputGuarantees()
		got := !violated
		if got != step.want {
			t.Fatalf("tick %d: guarantee violated=%v (idx %d), want holds=%v", step.tick, violated, idx, step.want)
		}
	}
}

func TestHistoricallyEqualsNotOnceNot(t *testing.T) {
	p := Atom(0)
	hist := Historically(Unbounded, p)
	notOnceNot := Not(Once(Unbounded, Not(p)))

	oHist := NewOracle(nil, []Tracked{{Name: "hist", Formula: hist}})
	oEquiv := NewOracle(nil, []Tracked{{Name: "equiv", Formula: notOnceNot}})

	labels := []bool{true, true, false, true, true}
	for i, l := range labels {
		oHist.Update([]bool{l}, numset.Time(i))
		oEquiv.Update([]bool{l}, numset.Time(i))
		_, _, v1 := oHist.OutputGuarantees()
		_, _, v2 := oEquiv.OutputGuarantees()
		if v1 != v2 {
			t.Fatalf("step %d: historically violated=%v, not-once-not violated=%v", i, v1, v2)
		}
	}
}

func TestGuaranteeViolationIsSticky(t *testing.T) {
	p := Atom(0)
	o := NewOracle(nil, []Tracked{{Name: "always_p", Formula: Historically(Unbounded, p)}})

	o.Update([]bool{true}, 0)
	if _, _, violated := o.OutputGuarantees(); violated {
		t.Fatal("should hold while p stays true")
	}
	o.Update([]bool{false}, 1)
	if _, _, violated := o.OutputGuarantees(); !violated {
		t.Fatal("expected violation once p goes false")
	}
	o.Update([]bool{true}, 2)
	if _, _, violated := o.OutputGuarantees(); !violated {
		t.Fatal("violation must remain sticky even after p recovers")
	}
}

// TestSinceRejectsInvalidWindow exercises Since[1,2](phi,psi) where phi is
// always false and psi holds only at tick 2. Since Lo=1 rules out the
// vacuous witness t'=t, and phi never holds so no t' < t can start a
// continuously-true run of phi either, the formula should never hold. At
// t=3 the window [t-Hi,t-Lo]=[1,2] still contains psi's tick-2 instant, so
// a windowHolds that doesn't reject lower>upper windows wrongly reports the
// formula as holding there.
func TestSinceRejectsInvalidWindow(t *testing.T) {
	phi := Atom(0)
	psi := Atom(1)
	since := Since(Bound{Lo: 1, Hi: 2}, phi, psi)
	o := NewOracle(nil, []Tracked{{Name: "since_holds", Formula: since}})

	trace := []struct {
		phi, psi bool
		tick     uint64
	}{
		{false, false, 0},
		{false, false, 1},
		{false, true, 2},
		{false, false, 3},
	}

	for _, step := range trace {
		o.Update([]bool{step.phi, step.psi}, numset.Time(step.tick))
		_, _, violated := o.OutputGuarantees()
		if !violated {
			t.Fatalf("tick %d: expected since_holds to stay violated (phi never holds so no valid witness exists), got holds", step.tick)
		}
	}
}

func TestAssumptionFailureReported(t *testing.T) {
	assume := Atom(0)
	o := NewOracle([]Tracked{{Name: "assume_p", Formula: assume}}, nil)

	o.Update([]bool{true}, 0)
	if _, violated := o.OutputAssumes(); violated {
		t.Fatal("assumption holds while p is true")
	}
	o.Update([]bool{false}, 1)
	reason, violated := o.OutputAssumes()
	if !violated || reason != "assume_p" {
		t.Fatalf("expected assume_p violation, got reason=%q violated=%v", reason, violated)
	}
}
