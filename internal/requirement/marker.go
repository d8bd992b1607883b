package requirement

import (
	"fmt"
	"strings"
	"unicode"
)

// Marker is a parsed PEP 508 environment marker.
type Marker struct {
	raw  string
	expr markerNode
}

// ParseMarker parses the text after ";" in a requirement.
func ParseMarker(text string) (*Marker, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty marker")
	}
	toks, err := tokenizeMarker(text)
	if err != nil {
		return nil, err
	}
	p := &markerParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("marker %q: %w", text, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("marker %q: unexpected %q", text, p.toks[p.pos].text)
	}
	return &Marker{raw: text, expr: expr}, nil
}

// String returns the marker as written.
func (m *Marker) String() string {
	return m.raw
}

// Evaluate reports whether the marker holds in env.
func (m *Marker) Evaluate(env Environment) (bool, error) {
	return m.expr.eval(env)
}

type markerNode interface {
	eval(env Environment) (bool, error)
}

type boolNode struct {
	and         bool
	left, right markerNode
}

func (n boolNode) eval(env Environment) (bool, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return false, err
	}
	if n.and && !l {
		return false, nil
	}
	if !n.and && l {
		return true, nil
	}
	return n.right.eval(env)
}

type operand struct {
	variable bool
	value    string
}

func (o operand) resolve(env Environment) (string, error) {
	if !o.variable {
		return o.value, nil
	}
	v, ok := env[o.value]
	if !ok {
		return "", fmt.Errorf("unknown marker variable %q", o.value)
	}
	return v, nil
}

type compareNode struct {
	op          string
	left, right operand
}

var versionVariables = map[string]bool{
	"python_version":         true,
	"python_full_version":    true,
	"implementation_version": true,
}

func (n compareNode) eval(env Environment) (bool, error) {
	l, err := n.left.resolve(env)
	if err != nil {
		return false, err
	}
	r, err := n.right.resolve(env)
	if err != nil {
		return false, err
	}

	switch n.op {
	case "in":
		return strings.Contains(r, l), nil
	case "not in":
		return !strings.Contains(r, l), nil
	}

	versionish := (n.left.variable && versionVariables[n.left.value]) ||
		(n.right.variable && versionVariables[n.right.value])
	if versionish {
		return compareVersions(n.op, l, r)
	}

	if n.left.value == "extra" || n.right.value == "extra" {
		l, r = Canonicalize(l), Canonicalize(r)
	}
	switch n.op {
	case "==", "===":
		return l == r, nil
	case "!=":
		return l != r, nil
	default:
		// PEP 508 falls back to string comparison only for equality;
		// ordering on non-version values is an error.
		return false, fmt.Errorf("operator %s needs version operands, got %q and %q", n.op, l, r)
	}
}

func compareVersions(op, l, r string) (bool, error) {
	if l == "" || r == "" {
		return false, fmt.Errorf("marker compares an unknown version")
	}
	if op == "~=" || strings.HasSuffix(r, ".*") {
		spec, err := ParseSpecifier(op + r)
		if err != nil {
			return false, err
		}
		lv, err := ParseVersion(l)
		if err != nil {
			return false, err
		}
		return spec.matches(lv), nil
	}
	lv, err := ParseVersion(l)
	if err != nil {
		return false, err
	}
	rv, err := ParseVersion(r)
	if err != nil {
		return false, err
	}
	c := lv.Compare(rv)
	switch op {
	case "==", "===":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unsupported marker operator %q", op)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenizeMarker(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in marker %q", s)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("<>=!~", rune(c)):
			j := i + 1
			for j < len(s) && strings.ContainsRune("<>=!~", rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokOp, s[i:j]})
			i = j
		case c == '_' || unicode.IsLetter(rune(c)):
			j := i + 1
			for j < len(s) && (s[j] == '_' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q in marker %q", c, s)
		}
	}
	return toks, nil
}

type markerParser struct {
	toks []token
	pos  int
}

func (p *markerParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) parseOr() (markerNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokIdent || t.text != "or" {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolNode{and: false, left: left, right: right}
	}
}

func (p *markerParser) parseAnd() (markerNode, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokIdent || t.text != "and" {
			return left, nil
		}
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = boolNode{and: true, left: left, right: right}
	}
}

func (p *markerParser) parseAtom() (markerNode, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if t.kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareNode{op: op, left: left, right: right}, nil
}

func (p *markerParser) parseOperand() (operand, error) {
	t, ok := p.peek()
	if !ok {
		return operand{}, fmt.Errorf("expected a value")
	}
	switch t.kind {
	case tokString:
		p.pos++
		return operand{value: t.text}, nil
	case tokIdent:
		p.pos++
		return operand{variable: true, value: strings.ReplaceAll(t.text, ".", "_")}, nil
	}
	return operand{}, fmt.Errorf("expected a value, got %q", t.text)
}

func (p *markerParser) parseOperator() (string, error) {
	t, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("expected an operator")
	}
	switch {
	case t.kind == tokOp:
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=", "~=", "===":
			p.pos++
			return t.text, nil
		}
	case t.kind == tokIdent && t.text == "in":
		p.pos++
		return "in", nil
	case t.kind == tokIdent && t.text == "not":
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokIdent && p.toks[p.pos+1].text == "in" {
			p.pos += 2
			return "not in", nil
		}
	}
	return "", fmt.Errorf("unexpected %q where an operator was expected", t.text)
}
