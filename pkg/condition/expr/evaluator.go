package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/condition"
)

// Evaluator is a small, dependency-free condition evaluator.
//
// Supported forms:
//   - truthiness: `channel`, `!channel`
//   - equality: `channel == ""`, `age != 0`, `enabled == true`, `x == null`
//   - ordering: `age >= 18`, `age < 65`
//   - composition: `a == "x" && (b || !c)`
//
// Identifiers are dotted value paths (`social.twitter`, `phNumbers.0.number`),
// `self` refers to the field being evaluated, and the `extras.` prefix reads
// from condition.Context.Extras.
type Evaluator struct{}

// New returns an Evaluator.
func New() *Evaluator { return &Evaluator{} }

var _ condition.Evaluator = (*Evaluator)(nil)

// Eval parses and evaluates rule. An empty rule evaluates to false so that an
// unset `disabledWhen` never disables a field.
func (e *Evaluator) Eval(fieldPath, rule string, ctx condition.Context) (bool, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return false, nil
	}
	root, err := parse(trimmed)
	if err != nil {
		return false, err
	}
	return root.eval(scope{field: fieldPath, ctx: ctx})
}

// Expression is a parsed condition that can be evaluated repeatedly.
type Expression struct {
	root node
}

// Eval evaluates a pre-parsed expression.
func (x Expression) Eval(fieldPath string, ctx condition.Context) (bool, error) {
	if x.root == nil {
		return false, nil
	}
	return x.root.eval(scope{field: fieldPath, ctx: ctx})
}

// Compile parses rule once so callers can validate conditions up front.
func Compile(rule string) (Expression, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return Expression{}, nil
	}
	root, err := parse(trimmed)
	if err != nil {
		return Expression{}, err
	}
	return Expression{root: root}, nil
}

func parse(rule string) (node, error) {
	tokens, err := tokenize(rule)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.New("condition/expr: empty expression")
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("condition/expr: unexpected token %q", p.tokens[p.pos].raw)
	}
	return root, nil
}

type scope struct {
	field string
	ctx   condition.Context
}

func (s scope) lookup(identifier string) (any, bool) {
	key := strings.TrimSpace(identifier)
	switch {
	case key == "":
		return nil, false
	case key == "self":
		return lookupTree(s.ctx.Values, s.field)
	case strings.HasPrefix(key, "self."):
		return lookupTree(s.ctx.Values, valuepath.Join(s.field, key[len("self."):]))
	case strings.HasPrefix(strings.ToLower(key), "extras."):
		return lookupTree(s.ctx.Extras, key[len("extras."):])
	default:
		return lookupTree(s.ctx.Values, key)
	}
}

func lookupTree(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}
	return valuepath.Get(values, path)
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(input); {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
		case ch == '!' || ch == '=' || ch == '<' || ch == '>' || ch == '&' || ch == '|':
			tok, width, err := operator(input[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += width
		case ch == '"' || ch == '\'':
			value, width, err := quoted(input[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, raw: value})
			i += width
		default:
			start := i
			for i < len(input) && !strings.ContainsRune(" \t\n\r()!=<>&|", rune(input[i])) {
				i++
			}
			tokens = append(tokens, word(input[start:i]))
		}
	}
	return tokens, nil
}

func operator(input string) (token, int, error) {
	two := input
	if len(two) > 2 {
		two = two[:2]
	}
	switch two {
	case "==":
		return token{kind: tokenEq, raw: "=="}, 2, nil
	case "!=":
		return token{kind: tokenNeq, raw: "!="}, 2, nil
	case "<=":
		return token{kind: tokenLte, raw: "<="}, 2, nil
	case ">=":
		return token{kind: tokenGte, raw: ">="}, 2, nil
	case "&&":
		return token{kind: tokenAnd, raw: "&&"}, 2, nil
	case "||":
		return token{kind: tokenOr, raw: "||"}, 2, nil
	}
	switch input[0] {
	case '!':
		return token{kind: tokenNot, raw: "!"}, 1, nil
	case '<':
		return token{kind: tokenLt, raw: "<"}, 1, nil
	case '>':
		return token{kind: tokenGt, raw: ">"}, 1, nil
	case '=':
		return token{}, 0, errors.New("condition/expr: unexpected '='; use '=='")
	case '&':
		return token{}, 0, errors.New("condition/expr: unexpected '&'; use '&&'")
	default:
		return token{}, 0, errors.New("condition/expr: unexpected '|'; use '||'")
	}
}

func quoted(input string) (string, int, error) {
	quote := input[0]
	escaped := false
	for i := 1; i < len(input); i++ {
		c := input[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == quote:
			body := input[1:i]
			if quote == '\'' {
				body = strings.ReplaceAll(body, `\'`, `'`)
				body = strings.ReplaceAll(body, `"`, `\"`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return "", 0, fmt.Errorf("condition/expr: invalid string literal: %w", err)
			}
			return value, i + 1, nil
		}
	}
	return "", 0, errors.New("condition/expr: unterminated string literal")
}

func word(raw string) token {
	switch strings.ToLower(raw) {
	case "true", "false":
		return token{kind: tokenBool, raw: strings.ToLower(raw)}
	case "null", "nil", "undefined":
		return token{kind: tokenNull, raw: "null"}
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return token{kind: tokenNumber, raw: raw}
	}
	return token{kind: tokenIdentifier, raw: raw}
}

type node interface {
	eval(s scope) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(s scope) (bool, error) {
	ok, err := n.left.eval(s)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(s)
}

type andNode struct{ left, right node }

func (n andNode) eval(s scope) (bool, error) {
	ok, err := n.left.eval(s)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(s)
}

type notNode struct{ inner node }

func (n notNode) eval(s scope) (bool, error) {
	ok, err := n.inner.eval(s)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type truthyNode struct{ identifier string }

func (n truthyNode) eval(s scope) (bool, error) {
	value, ok := s.lookup(n.identifier)
	if !ok {
		return false, nil
	}
	return truthy(value), nil
}

type compareNode struct {
	identifier string
	op         token
	literal    token
}

func (n compareNode) eval(s scope) (bool, error) {
	value, _ := s.lookup(n.identifier)

	switch n.literal.kind {
	case tokenNull:
		return equality(n.op, value == nil)
	case tokenBool:
		got, _ := coerceBool(value)
		return equality(n.op, got == (n.literal.raw == "true"))
	case tokenNumber:
		want, err := strconv.ParseFloat(n.literal.raw, 64)
		if err != nil {
			return false, fmt.Errorf("condition/expr: invalid number literal %q", n.literal.raw)
		}
		got, ok := coerceNumber(value)
		if !ok {
			if n.op.kind == tokenEq || n.op.kind == tokenNeq {
				return equality(n.op, false)
			}
			return false, nil
		}
		return ordered(n.op, compareFloat(got, want))
	default:
		got := coerceString(value)
		return ordered(n.op, strings.Compare(got, n.literal.raw))
	}
}

func equality(op token, equal bool) (bool, error) {
	switch op.kind {
	case tokenEq:
		return equal, nil
	case tokenNeq:
		return !equal, nil
	default:
		return false, fmt.Errorf("condition/expr: operator %q needs a number or string literal", op.raw)
	}
}

func ordered(op token, cmp int) (bool, error) {
	switch op.kind {
	case tokenEq:
		return cmp == 0, nil
	case tokenNeq:
		return cmp != 0, nil
	case tokenLt:
		return cmp < 0, nil
	case tokenLte:
		return cmp <= 0, nil
	case tokenGt:
		return cmp > 0, nil
	case tokenGte:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("condition/expr: unsupported operator %q", op.raw)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokenAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.match(tokenNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.match(tokenLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokenRParen) {
			return nil, errors.New("condition/expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := p.next()
	if !ok {
		return nil, errors.New("condition/expr: unexpected end of expression")
	}
	if ident.kind != tokenIdentifier {
		return nil, fmt.Errorf("condition/expr: expected identifier, got %q", ident.raw)
	}

	op, ok := p.peek()
	if !ok || !isComparison(op.kind) {
		return truthyNode{identifier: ident.raw}, nil
	}
	p.pos++

	lit, ok := p.next()
	if !ok {
		return nil, errors.New("condition/expr: missing literal")
	}
	switch lit.kind {
	case tokenString, tokenNumber, tokenBool, tokenNull:
	case tokenIdentifier:
		// Bare words compare as strings.
		lit.kind = tokenString
	default:
		return nil, fmt.Errorf("condition/expr: expected literal, got %q", lit.raw)
	}
	return compareNode{identifier: ident.raw, op: op, literal: lit}, nil
}

func isComparison(kind tokenKind) bool {
	switch kind {
	case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
		return true
	default:
		return false
	}
}

func (p *parser) match(kind tokenKind) bool {
	if tok, ok := p.peek(); ok && tok.kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	if f, ok := coerceNumber(value); ok {
		return f != 0 && f == f
	}
	return true
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed, true
		}
		return strings.TrimSpace(v) != "", true
	default:
		return truthy(value), true
	}
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(value)
	}
}
