// Package expr implements the typed expression language shared by Program
// Graphs and Channel Systems: a small algebraic tree of Bool/Int/Tuple values
// compiled once into a closure and evaluated many times over a valuation.
package expr

import "fmt"

// Kind is the tag of a Value or Type.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindTuple
)

// Type describes the shape of a Value: Bool, Int, or a Product of types.
type Type struct {
	Kind Kind
	// Elems is populated only for KindTuple, one Type per component.
	Elems []Type
}

func Bool() Type { return Type{Kind: KindBool} }
func Int() Type  { return Type{Kind: KindInt} }
func Tuple(elems ...Type) Type { return Type{Kind: KindTuple, Elems: elems} }

// Equal reports whether two types are structurally identical.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != KindTuple {
		return true
	}
	if len(t.Elems) != len(o.Elems) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.Kind {
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	default:
		return fmt.Sprintf("Tuple%v", t.Elems)
	}
}

// Default returns the canonical default value for a Type: false, 0, or a
// tuple of each component's default.
func (t Type) Default() Value {
	switch t.Kind {
	case KindBool:
		return Value{kind: KindBool}
	case KindInt:
		return Value{kind: KindInt}
	default:
		elems := make([]Value, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = e.Default()
		}
		return Value{kind: KindTuple, tuple: elems}
	}
}

// Value is the sum type Bool(b) | Int(i32) | Tuple(sequence<Value>).
type Value struct {
	kind  Kind
	b     bool
	i     int32
	tuple []Value
}

func VBool(b bool) Value        { return Value{kind: KindBool, b: b} }
func VInt(i int32) Value        { return Value{kind: KindInt, i: i} }
func VTuple(vs ...Value) Value  { return Value{kind: KindTuple, tuple: vs} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool { return v.b }
func (v Value) Int() int32 { return v.i }
func (v Value) Elems() []Value { return v.tuple }

// Type inductively computes the type of a value.
func (v Value) Type() Type {
	switch v.kind {
	case KindBool:
		return Bool()
	case KindInt:
		return Int()
	default:
		elems := make([]Type, len(v.tuple))
		for i, e := range v.tuple {
			elems[i] = e.Type()
		}
		return Tuple(elems...)
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	default:
		return fmt.Sprintf("%v", v.tuple)
	}
}
