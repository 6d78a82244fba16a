package pmtl

import "scan/internal/numset"

// node is one flattened subformula: its own NumSet and its children's
// indices in the oracle's postorder node list.
type node struct {
	f        *Formula
	set      *numset.NumSet
	children []int
}

// Tracked is a named top-level formula the Oracle reports on: an assumption
// (violated -> Incomplete) or a guarantee (violated -> Fail(index)).
type Tracked struct {
	Name    string
	Formula *Formula
}

// Oracle is an incremental past-time MTL monitor over a fixed set of
// assumption and guarantee formulae. Update is called once per observed
// event; OutputAssumes/OutputGuarantees report the current verdict.
type Oracle struct {
	nodes       []node
	index       map[*Formula]int
	assumptions []int
	assumeNm    []string
	guarantees  []int
	guaranteeNm []string
	violated    []bool
	lastTick    numset.Time
	step        numset.Time
	haveTick    bool
	tPrev       numset.DenseTime
}

// NewOracle flattens assumption and guarantee formulae into a shared
// postorder node list (the same *Formula value appearing in more than one
// property shares state; structurally equal but distinct values get separate
// nodes) and prepares an empty trace.
func NewOracle(assumptions []Tracked, guarantees []Tracked) *Oracle {
	o := &Oracle{index: make(map[*Formula]int)}
	for _, a := range assumptions {
		o.assumptions = append(o.assumptions, o.flatten(a.Formula))
		o.assumeNm = append(o.assumeNm, a.Name)
	}
	for _, g := range guarantees {
		o.guarantees = append(o.guarantees, o.flatten(g.Formula))
		o.guaranteeNm = append(o.guaranteeNm, g.Name)
	}
	o.violated = make([]bool, len(o.guarantees))
	return o
}

func (o *Oracle) flatten(f *Formula) int {
	if idx, ok := o.index[f]; ok {
		return idx
	}
	children := make([]int, len(f.sub))
	for i, s := range f.sub {
		children[i] = o.flatten(s)
	}
	idx := len(o.nodes)
	o.nodes = append(o.nodes, node{f: f, set: numset.New(), children: children})
	o.index[f] = idx
	return idx
}

// Update processes one observation: labels holds the current truth value of
// every registered predicate, tick is the current model time. Successive
// updates at the same tick are disambiguated by an internal dense-time step
// counter. The trace starts at the pre-history instant (0,0), so a first
// update at tick 0 is placed at step 1.
func (o *Oracle) Update(labels []bool, tick numset.Time) {
	var t numset.DenseTime
	if tick == o.lastTick {
		o.step++
	} else {
		o.step = 0
	}
	o.lastTick = tick
	o.haveTick = true
	t = numset.DenseTime{Tick: tick, Step: o.step}

	for i := range o.nodes {
		n := &o.nodes[i]
		if currentlyHolds(o, n, labels, t) {
			n.set.AddInterval(o.tPrev, t)
		}
	}

	for gi, idx := range o.guarantees {
		// Recomputed fresh every tick, not OR-accumulated: a bounded-window
		// guarantee's window slides forward and can start holding again, while
		// an unbounded one stays decided false on its own once it first fails,
		// since nothing can ever re-enter its ever-growing window.
		o.violated[gi] = !o.nodes[idx].set.Contains(t)
	}

	o.tPrev = t
}

func currentlyHolds(o *Oracle, n *node, labels []bool, t numset.DenseTime) bool {
	switch n.f.kind {
	case kindTrue:
		return true
	case kindFalse:
		return false
	case kindAtom:
		return n.f.atom >= 0 && n.f.atom < len(labels) && labels[n.f.atom]
	case kindNot:
		return !o.nodes[n.children[0]].set.Contains(t)
	case kindAnd:
		for _, c := range n.children {
			if !o.nodes[c].set.Contains(t) {
				return false
			}
		}
		return true
	case kindOr:
		for _, c := range n.children {
			if o.nodes[c].set.Contains(t) {
				return true
			}
		}
		return false
	case kindImplies:
		lhs := o.nodes[n.children[0]].set.Contains(t)
		rhs := o.nodes[n.children[1]].set.Contains(t)
		return !lhs || rhs
	case kindOnce:
		return windowContains(o.nodes[n.children[0]].set, t, n.f.bound)
	case kindHistorically:
		child := o.nodes[n.children[0]].set
		complement := child.Clone()
		complement.Complement()
		return !windowContains(complement, t, n.f.bound)
	case kindSince:
		phi := o.nodes[n.children[0]].set
		psi := o.nodes[n.children[1]].set
		x := phi.ContinuousTrueBackFrom(t)
		lower := numset.MaxDT(numset.SubTicks(t, n.f.bound.Hi), x)
		upper := numset.SubTicks(t, n.f.bound.Lo)
		return windowHolds(psi, lower, upper)
	default:
		return false
	}
}

// windowContains reports whether set holds at some instant in
// [t-bound.Hi, t-bound.Lo].
func windowContains(set *numset.NumSet, t numset.DenseTime, b Bound) bool {
	lower := numset.SubTicks(t, b.Hi)
	upper := numset.SubTicks(t, b.Lo)
	return windowHolds(set, lower, upper)
}

// windowHolds reports whether set holds at some instant in the CLOSED
// window [lower, upper]. A strictly-invalid window (lower > upper, which
// Since reaches whenever bound.Lo rules out the current tick as a witness
// and no earlier instant qualifies) has no instants and so never holds,
// distinct from the valid degenerate window lower == upper. NumSet
// intervals are themselves right-closed, so the left endpoint needs an
// explicit inclusive check; the rest of the window is tested as the
// half-open (lower, upper] already native to the representation.
func windowHolds(set *numset.NumSet, lower, upper numset.DenseTime) bool {
	if upper.Less(lower) {
		return false
	}
	if !lower.Less(upper) {
		return set.Contains(upper)
	}
	if set.Contains(lower) {
		return true
	}
	window := numset.FromRange(lower, upper)
	inter := numset.Intersection([]*numset.NumSet{window, set})
	return inter.Any()
}

// OutputAssumes returns the name of the first assumption not currently
// decidable as true, or "" with violated=false if every assumption holds.
func (o *Oracle) OutputAssumes() (reason string, violated bool) {
	for i, idx := range o.assumptions {
		if !o.nodes[idx].set.Contains(o.tPrev) {
			return o.assumeNm[i], true
		}
	}
	return "", false
}

// OutputGuarantees returns the index and name of the first guarantee that is
// decidably false, sticky across later updates once found. violated is false
// if no guarantee has been violated.
func (o *Oracle) OutputGuarantees() (index int, name string, violated bool) {
	for i, v := range o.violated {
		if v {
			return i, o.guaranteeNm[i], true
		}
	}
	return 0, "", false
}
