package pmtl

import "testing"

func resolverFor(names ...string) PredicateResolver {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return func(name string) (int, error) {
		i, ok := idx[name]
		if !ok {
			return 0, errUnknownPredicate(name)
		}
		return i, nil
	}
}

type errUnknownPredicate string

func (e errUnknownPredicate) Error() string { return "unknown predicate: " + string(e) }

func TestParseBasicConnectives(t *testing.T) {
	f, err := Parse("{p} && {q} -> !{r}", resolverFor("p", "q", "r"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if f.kind != kindImplies {
		t.Fatalf("expected top-level implies, got kind %d", f.kind)
	}
	if f.sub[0].kind != kindAnd || len(f.sub[0].sub) != 2 {
		t.Fatalf("expected lhs to be a 2-way and")
	}
	if f.sub[1].kind != kindNot {
		t.Fatalf("expected rhs to be a not")
	}
}

func TestParseBoundedOnce(t *testing.T) {
	f, err := Parse("once[0:5] {p}", resolverFor("p"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if f.kind != kindOnce {
		t.Fatalf("expected once, got kind %d", f.kind)
	}
	if f.bound.Lo != 0 || f.bound.Hi != 5 {
		t.Fatalf("expected bound [0:5], got %+v", f.bound)
	}
}

func TestParseUnboundedHistorically(t *testing.T) {
	f, err := Parse("H {p}", resolverFor("p"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if f.kind != kindHistorically {
		t.Fatalf("expected historically, got kind %d", f.kind)
	}
	if f.bound != Unbounded {
		t.Fatalf("expected default unbounded window, got %+v", f.bound)
	}
}

func TestParseSince(t *testing.T) {
	f, err := Parse("S[1:3]({p}, {q})", resolverFor("p", "q"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if f.kind != kindSince {
		t.Fatalf("expected since, got kind %d", f.kind)
	}
	if f.bound.Lo != 1 || f.bound.Hi != 3 {
		t.Fatalf("expected bound [1:3], got %+v", f.bound)
	}
}

func TestParseUnknownPredicate(t *testing.T) {
	_, err := Parse("{missing}", resolverFor("p"))
	if err == nil {
		t.Fatal("expected an error resolving an unknown predicate")
	}
}

func TestParseMaxBound(t *testing.T) {
	f, err := Parse("once[0:MAX] true", resolverFor())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if f.bound.Hi == 0 {
		t.Fatalf("expected MAX hi bound, got %+v", f.bound)
	}
}
