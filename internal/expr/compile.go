package expr

// Valuation maps variables of domain V to their current Value.
type Valuation[V comparable] interface {
	Get(V) (Value, bool)
}

// MapValuation is the common map-backed Valuation.
type MapValuation[V comparable] map[V]Value

func (m MapValuation[V]) Get(v V) (Value, bool) {
	val, ok := m[v]
	return val, ok
}

// Compiled is a well-typed expression translated into a closure. Evaluation
// is total on well-typed expressions against a matching valuation; ill-typed
// or missing-variable evaluations produce the distinguished "undefined"
// (false, zero Value).
type Compiled[V comparable] struct {
	fn func(Valuation[V]) (Value, bool)
}

// Eval evaluates the compiled expression. The second return is false for
// "undefined".
func (c Compiled[V]) Eval(val Valuation[V]) (Value, bool) {
	return c.fn(val)
}

// Compile type-checks e against ctx and, on success, returns a Compiled
// evaluator. Compile-time errors are TypeMismatch/UnknownVariable; the
// returned Compiled never errors, it returns undefined instead.
func Compile[V comparable](e Expression[V], ctx TypingContext[V]) (Compiled[V], error) {
	if _, err := StaticType(e, ctx); err != nil {
		return Compiled[V]{}, err
	}
	return Compiled[V]{fn: compileNode(e)}, nil
}

func compileNode[V comparable](e Expression[V]) func(Valuation[V]) (Value, bool) {
	switch e.op {
	case opConst:
		v := e.val
		return func(Valuation[V]) (Value, bool) { return v, true }
	case opVar:
		v := e.v
		return func(val Valuation[V]) (Value, bool) { return val.Get(v) }
	case opTuple:
		subs := compileAll[V](e.sub)
		return func(val Valuation[V]) (Value, bool) {
			elems := make([]Value, len(subs))
			for i, s := range subs {
				v, ok := s(val)
				if !ok {
					return Value{}, false
				}
				elems[i] = v
			}
			return VTuple(elems...), true
		}
	case opComponent:
		sub := compileNode[V](e.sub[0])
		idx := e.index
		return func(val Valuation[V]) (Value, bool) {
			v, ok := sub(val)
			if !ok || v.Kind() != KindTuple {
				return Value{}, false
			}
			elems := v.Elems()
			if idx < 0 || idx >= len(elems) {
				return Value{}, false
			}
			return elems[idx], true
		}
	case opAnd:
		subs := compileAll[V](e.sub)
		return func(val Valuation[V]) (Value, bool) {
			for _, s := range subs {
				v, ok := s(val)
				if !ok || v.Kind() != KindBool {
					return Value{}, false
				}
				if !v.Bool() {
					return VBool(false), true
				}
			}
			return VBool(true), true
		}
	case opOr:
		subs := compileAll[V](e.sub)
		return func(val Valuation[V]) (Value, bool) {
			for _, s := range subs {
				v, ok := s(val)
				if !ok || v.Kind() != KindBool {
					return Value{}, false
				}
				if v.Bool() {
					return VBool(true), true
				}
			}
			return VBool(false), true
		}
	case opImplies:
		lhs := compileNode[V](e.sub[0])
		rhs := compileNode[V](e.sub[1])
		return func(val Valuation[V]) (Value, bool) {
			l, ok := lhs(val)
			if !ok || l.Kind() != KindBool {
				return Value{}, false
			}
			if !l.Bool() {
				return VBool(true), true
			}
			r, ok := rhs(val)
			if !ok || r.Kind() != KindBool {
				return Value{}, false
			}
			return VBool(r.Bool()), true
		}
	case opNot:
		sub := compileNode[V](e.sub[0])
		return func(val Valuation[V]) (Value, bool) {
			v, ok := sub(val)
			if !ok || v.Kind() != KindBool {
				return Value{}, false
			}
			return VBool(!v.Bool()), true
		}
	case opOpposite:
		sub := compileNode[V](e.sub[0])
		return func(val Valuation[V]) (Value, bool) {
			v, ok := sub(val)
			if !ok || v.Kind() != KindInt {
				return Value{}, false
			}
			return VInt(-v.Int()), true
		}
	case opSum:
		subs := compileAll[V](e.sub)
		return func(val Valuation[V]) (Value, bool) {
			var acc int32
			for _, s := range subs {
				v, ok := s(val)
				if !ok || v.Kind() != KindInt {
					return Value{}, false
				}
				acc += v.Int()
			}
			return VInt(acc), true
		}
	case opMult:
		subs := compileAll[V](e.sub)
		return func(val Valuation[V]) (Value, bool) {
			acc := int32(1)
			for _, s := range subs {
				v, ok := s(val)
				if !ok || v.Kind() != KindInt {
					return Value{}, false
				}
				acc *= v.Int()
			}
			return VInt(acc), true
		}
	case opEqual, opGreater, opGreaterEq, opLess, opLessEq:
		lhs := compileNode[V](e.sub[0])
		rhs := compileNode[V](e.sub[1])
		cmp := e.op
		return func(val Valuation[V]) (Value, bool) {
			l, ok := lhs(val)
			if !ok || l.Kind() != KindInt {
				return Value{}, false
			}
			r, ok := rhs(val)
			if !ok || r.Kind() != KindInt {
				return Value{}, false
			}
			var b bool
			switch cmp {
			case opEqual:
				b = l.Int() == r.Int()
			case opGreater:
				b = l.Int() > r.Int()
			case opGreaterEq:
				b = l.Int() >= r.Int()
			case opLess:
				b = l.Int() < r.Int()
			case opLessEq:
				b = l.Int() <= r.Int()
			}
			return VBool(b), true
		}
	default:
		return func(Valuation[V]) (Value, bool) { return Value{}, false }
	}
}

func compileAll[V comparable](es []Expression[V]) []func(Valuation[V]) (Value, bool) {
	fns := make([]func(Valuation[V]) (Value, bool), len(es))
	for i, e := range es {
		fns[i] = compileNode[V](e)
	}
	return fns
}
