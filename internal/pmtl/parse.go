package pmtl

import (
	"fmt"
	"strconv"
	"strings"

	"scan/internal/numset"
)

// PredicateResolver maps a predicate's textual name (the contents between
// { and }) to its atom index in the label vector a front-end will feed
// Oracle.Update.
type PredicateResolver func(name string) (int, error)

// Parse parses the textual PMTL grammar: P/once, H/historically, S/since
// optionally followed by [lo:hi], &&/and, ||/or, !/not, ->/implies,
// predicates delimited by { ... }, and the keywords true/false. A missing
// bound defaults to [0:MAX].
func Parse(src string, resolve PredicateResolver) (*Formula, error) {
	p := &parser{toks: tokenize(src), resolve: resolve}
	f, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("pmtl: unexpected trailing input at %q", p.toks[p.pos])
	}
	return f, nil
}

type parser struct {
	toks    []string
	pos     int
	resolve PredicateResolver
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("pmtl: expected %q, got %q", tok, p.peek())
	}
	p.pos++
	return nil
}

// implies is right-associative and binds loosest.
func (p *parser) parseImplies() (*Formula, error) {
	lhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek() == "->" {
		p.next()
		rhs, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		return Implies(lhs, rhs), nil
	}
	return lhs, nil
}

func (p *parser) parseOr() (*Formula, error) {
	terms := []*Formula{}
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms = append(terms, first)
	for p.peek() == "||" || p.peek() == "or" {
		p.next()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return Or(terms...), nil
}

func (p *parser) parseAnd() (*Formula, error) {
	terms := []*Formula{}
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms = append(terms, first)
	for p.peek() == "&&" || p.peek() == "and" {
		p.next()
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return And(terms...), nil
}

func (p *parser) parseUnary() (*Formula, error) {
	switch p.peek() {
	case "!", "not":
		p.next()
		f, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not(f), nil
	case "P", "once":
		p.next()
		b, err := p.parseOptionalBound()
		if err != nil {
			return nil, err
		}
		f, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Once(b, f), nil
	case "H", "historically":
		p.next()
		b, err := p.parseOptionalBound()
		if err != nil {
			return nil, err
		}
		f, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Historically(b, f), nil
	case "S", "since":
		p.next()
		b, err := p.parseOptionalBound()
		if err != nil {
			return nil, err
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		lhs, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		rhs, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Since(b, lhs, rhs), nil
	default:
		return p.parseAtomOrGroup()
	}
}

func (p *parser) parseAtomOrGroup() (*Formula, error) {
	switch tok := p.peek(); {
	case tok == "true":
		p.next()
		return True(), nil
	case tok == "false":
		p.next()
		return False(), nil
	case tok == "(":
		p.next()
		f, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return f, nil
	case tok == "{":
		p.next()
		name := p.next()
		if err := p.expect("}"); err != nil {
			return nil, err
		}
		idx, err := p.resolve(name)
		if err != nil {
			return nil, err
		}
		return Atom(idx), nil
	default:
		return nil, fmt.Errorf("pmtl: unexpected token %q", tok)
	}
}

// parseOptionalBound parses an optional "[lo:hi]" suffix, defaulting to
// Unbounded when absent.
func (p *parser) parseOptionalBound() (Bound, error) {
	if p.peek() != "[" {
		return Unbounded, nil
	}
	p.next()
	lo, err := p.parseTime()
	if err != nil {
		return Bound{}, err
	}
	if err := p.expect(":"); err != nil {
		return Bound{}, err
	}
	hi, err := p.parseTime()
	if err != nil {
		return Bound{}, err
	}
	if err := p.expect("]"); err != nil {
		return Bound{}, err
	}
	return Bound{Lo: lo, Hi: hi}, nil
}

func (p *parser) parseTime() (numset.Time, error) {
	tok := p.next()
	if tok == "MAX" {
		return numset.MaxTime, nil
	}
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pmtl: invalid time bound %q: %w", tok, err)
	}
	return numset.Time(n), nil
}

// tokenize splits src into the grammar's tokens: identifiers/keywords,
// braced predicate names, and the punctuation/operator symbols.
func tokenize(src string) []string {
	var toks []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '{':
			j := strings.IndexByte(src[i:], '}')
			if j < 0 {
				toks = append(toks, string(c))
				i++
				continue
			}
			toks = append(toks, "{", strings.TrimSpace(src[i+1:i+j]), "}")
			i += j + 1
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, "&&")
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, "||")
			i += 2
		case strings.HasPrefix(src[i:], "->"):
			toks = append(toks, "->")
			i += 2
		case c == '!' || c == '(' || c == ')' || c == '[' || c == ']' || c == ':' || c == ',':
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\n\r{}()[]:,!", rune(src[j])) && !strings.HasPrefix(src[j:], "&&") && !strings.HasPrefix(src[j:], "||") && !strings.HasPrefix(src[j:], "->") {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks
}
