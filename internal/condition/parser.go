// internal/condition/parser.go
package condition

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/solatis/streamrouter/internal/types"
)

/*
 * Precedence-climbing recursive descent parser.
 *
 * Grammar (low to high precedence):
 *
 *   or         := and ( OR and )*
 *   and        := unary ( AND unary )*
 *   unary      := NOT unary | primary
 *   primary    := "(" or ")" | function | comparison
 *   comparison := operand (EQ|NE|GT|GTE|LT|LTE) operand
 *               | operand BETWEEN operand AND operand
 *               | operand IN "(" operand ("," operand)* ")"
 *               | operand MATCH operand
 *   function   := attribute_exists "(" path ")"
 *               | attribute_not_exists "(" path ")"
 *               | begins_with "(" path "," operand ")"
 *               | contains "(" path "," operand ")"
 *               | has_changed "(" keys ")"
 *               | (is_type | attribute_type) "(" path "," tag ")"
 *   operand    := path | STRING | INT | FLOAT | true | false | null | size "(" path ")"
 *   path       := ($OLD | $NEW) ( "." NAME | "[" STRING "]" | "[" INT "]" )*
 *
 * NOT binds tighter than AND and OR, so NOT a & b is (NOT a) & b. AND and OR
 * are left-associative. Operands never start with "(", so an opening paren at
 * the start of a primary is always a grouped condition.
 *
 * Anything left over after the top-level condition, and any operand that is
 * not followed by an operator, is a SyntaxError; partial parses are never
 * accepted.
 */

type parser struct {
	tokens []Token
	pos    int
	depth  int
}

// Parse builds a predicate from tokens. The returned predicate keeps operands
// in source order and has no Source text; Compile fills both in.
func Parse(tokens []Token) (*Predicate, error) {
	if len(tokens) == 0 {
		return nil, &SyntaxError{Context: "empty expression"}
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != EOF {
		return nil, p.errorf(tok, "unexpected %s after complete condition", describe(tok))
	}
	return &Predicate{Root: root, cost: cost(root)}, nil
}

func (p *parser) peek() Token {
	if p.pos >= len(p.tokens) {
		line := 1
		if len(p.tokens) > 0 {
			line = p.tokens[len(p.tokens)-1].Line
		}
		return Token{Kind: EOF, Line: line}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.peek()
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind Kind, context string) (Token, error) {
	tok := p.next()
	if tok.Kind != kind {
		return tok, p.errorf(tok, "expected %s %s, found %s", kind, context, describe(tok))
	}
	return tok, nil
}

func (p *parser) errorf(tok Token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Line: tok.Line, Context: fmt.Sprintf(format, args...)}
}

func (p *parser) enter(tok Token) error {
	p.depth++
	if p.depth > types.MaxExpressionDepth {
		return &SyntaxError{
			Line:    tok.Line,
			Context: fmt.Sprintf("nesting deeper than %d", types.MaxExpressionDepth),
			Err:     types.ErrExpressionTooDeep,
		}
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == OR {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == AND {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.Kind != NOT {
		return p.parsePrimary()
	}
	p.next()
	if err := p.enter(tok); err != nil {
		return nil, err
	}
	defer p.leave()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Not{Operand: operand}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case LPAREN:
		p.next()
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN, "to close group"); err != nil {
			return nil, err
		}
		return cond, nil
	case ATTRIBUTE_EXISTS, ATTRIBUTE_NOT_EXISTS:
		return p.parseExists()
	case BEGINS_WITH, CONTAINS:
		return p.parsePathAndOperand()
	case HAS_CHANGED:
		return p.parseHasChanged()
	case IS_TYPE, ATTRIBUTE_TYPE:
		return p.parseIsType()
	case EOF:
		return nil, p.errorf(tok, "expected condition, found %s", describe(tok))
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	tok := p.next()
	switch tok.Kind {
	case EQ, NE, GT, GTE, LT, LTE:
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: comparisonOps[tok.Kind], Left: left, Right: right}, nil

	case BETWEEN:
		low, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(AND, "in BETWEEN"); err != nil {
			return nil, err
		}
		high, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &Between{Operand: left, Low: low, High: high}, nil

	case IN:
		if _, err := p.expect(LPAREN, "after IN"); err != nil {
			return nil, err
		}
		var list []Node
		for {
			item, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			list = append(list, item)
			if len(list) > types.MaxInOperatorValues {
				return nil, &SyntaxError{
					Line:    tok.Line,
					Context: fmt.Sprintf("IN list longer than %d", types.MaxInOperatorValues),
					Err:     types.ErrTooManyInValues,
				}
			}
			if p.peek().Kind != COMMA {
				break
			}
			p.next()
		}
		if _, err := p.expect(RPAREN, "to close IN list"); err != nil {
			return nil, err
		}
		return &In{Operand: left, List: list}, nil

	case MATCH:
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		fn := &Function{Name: FuncMatch, Args: []Node{left, right}}
		if lit, ok := right.(*Literal); ok {
			pattern, ok := lit.Value.(string)
			if !ok {
				return nil, p.errorf(tok, "regex pattern must be a string, found %s", lit)
			}
			re, err := compilePattern(pattern)
			if err != nil {
				return nil, p.errorf(tok, "invalid regex %s: %v", lit, err)
			}
			fn.pattern = re
		}
		return fn, nil
	}

	return nil, p.errorf(tok, "expected comparison operator after %s, found %s", left, describe(tok))
}

var comparisonOps = map[Kind]Operator{
	EQ:  OpEq,
	NE:  OpNe,
	GT:  OpGt,
	GTE: OpGte,
	LT:  OpLt,
	LTE: OpLte,
}

func (p *parser) parseOperand() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case OLD, NEW:
		return p.parsePath()
	case STRING:
		p.next()
		return &Literal{Value: tok.Text}, nil
	case INT:
		p.next()
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			// Out of int64 range; keep the magnitude as a float.
			f, ferr := strconv.ParseFloat(tok.Text, 64)
			if ferr != nil {
				return nil, p.errorf(tok, "invalid integer %s", tok.Text)
			}
			return &Literal{Value: f}, nil
		}
		return &Literal{Value: n}, nil
	case FLOAT:
		p.next()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %s", tok.Text)
		}
		return &Literal{Value: f}, nil
	case TRUE:
		p.next()
		return &Literal{Value: true}, nil
	case FALSE:
		p.next()
		return &Literal{Value: false}, nil
	case NULL:
		p.next()
		return &Literal{Value: nil}, nil
	case SIZE:
		p.next()
		if _, err := p.expect(LPAREN, "after size"); err != nil {
			return nil, err
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN, "to close size"); err != nil {
			return nil, err
		}
		return &Function{Name: FuncSize, Args: []Node{path}}, nil
	}
	return nil, p.errorf(tok, "expected operand, found %s", describe(tok))
}

func (p *parser) parsePath() (*Path, error) {
	tok := p.next()
	path := &Path{}
	switch tok.Kind {
	case OLD:
		path.Image = OldImage
	case NEW:
		path.Image = NewImage
	default:
		return nil, p.errorf(tok, "expected $OLD or $NEW, found %s", describe(tok))
	}

	for {
		var seg PathSegment
		switch p.peek().Kind {
		case DOT:
			p.next()
			name := p.next()
			if !isWord(name) {
				return nil, p.errorf(name, "expected attribute name after '.', found %s", describe(name))
			}
			seg = PathSegment{Key: name.Text}
		case LBRACKET:
			p.next()
			key := p.next()
			switch key.Kind {
			case STRING:
				seg = PathSegment{Key: key.Text}
			case INT:
				idx, err := strconv.Atoi(key.Text)
				if err != nil {
					return nil, p.errorf(key, "list index %s out of range", key.Text)
				}
				seg = PathSegment{Index: idx, IsIndex: true}
			default:
				return nil, p.errorf(key, "expected string key or integer index, found %s", describe(key))
			}
			if _, err := p.expect(RBRACKET, "to close path step"); err != nil {
				return nil, err
			}
		default:
			return path, nil
		}
		path.Segments = append(path.Segments, seg)
		if len(path.Segments) > types.MaxPathDepth {
			return nil, &SyntaxError{
				Line:    tok.Line,
				Context: fmt.Sprintf("path deeper than %d steps", types.MaxPathDepth),
				Err:     types.ErrPathTooDeep,
			}
		}
	}
}

func (p *parser) parseExists() (Node, error) {
	tok := p.next()
	name := FuncAttributeExists
	if tok.Kind == ATTRIBUTE_NOT_EXISTS {
		name = FuncAttributeNotExists
	}
	if _, err := p.expect(LPAREN, "after "+tok.Text); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN, "to close "+tok.Text); err != nil {
		return nil, err
	}
	return &Function{Name: name, Args: []Node{path}}, nil
}

func (p *parser) parsePathAndOperand() (Node, error) {
	tok := p.next()
	name := FuncBeginsWith
	if tok.Kind == CONTAINS {
		name = FuncContains
	}
	if _, err := p.expect(LPAREN, "after "+tok.Text); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COMMA, "in "+tok.Text); err != nil {
		return nil, err
	}
	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN, "to close "+tok.Text); err != nil {
		return nil, err
	}
	return &Function{Name: name, Args: []Node{path, operand}}, nil
}

// parseHasChanged accepts has_changed("a"), has_changed("a", "b") and
// has_changed(("a", "b")).
func (p *parser) parseHasChanged() (Node, error) {
	tok := p.next()
	if _, err := p.expect(LPAREN, "after has_changed"); err != nil {
		return nil, err
	}
	grouped := false
	if p.peek().Kind == LPAREN {
		p.next()
		grouped = true
	}

	var keys []string
	var args []Node
	for {
		key, err := p.expect(STRING, "as has_changed key")
		if err != nil {
			return nil, err
		}
		keys = append(keys, key.Text)
		args = append(args, &Literal{Value: key.Text})
		if len(keys) > types.MaxHasChangedKeys {
			return nil, &SyntaxError{
				Line:    tok.Line,
				Context: fmt.Sprintf("has_changed takes at most %d keys", types.MaxHasChangedKeys),
				Err:     types.ErrTooManyKeys,
			}
		}
		if p.peek().Kind != COMMA {
			break
		}
		p.next()
	}

	if grouped {
		if _, err := p.expect(RPAREN, "to close key list"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN, "to close has_changed"); err != nil {
		return nil, err
	}
	return &Function{Name: FuncHasChanged, Args: args, keys: keys}, nil
}

func (p *parser) parseIsType() (Node, error) {
	tok := p.next()
	name := FuncIsType
	if tok.Kind == ATTRIBUTE_TYPE {
		name = FuncAttributeType
	}
	if _, err := p.expect(LPAREN, "after "+tok.Text); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COMMA, "in "+tok.Text); err != nil {
		return nil, err
	}
	tagTok := p.next()
	if tagTok.Kind != NAME && tagTok.Kind != STRING {
		return nil, p.errorf(tagTok, "expected type tag, found %s", describe(tagTok))
	}
	tag, ok := types.ParseType(tagTok.Text)
	if !ok {
		return nil, &SyntaxError{
			Line:    tagTok.Line,
			Context: fmt.Sprintf("unknown type tag %q", tagTok.Text),
			Err:     types.ErrUnknownType,
		}
	}
	if _, err := p.expect(RPAREN, "to close "+tok.Text); err != nil {
		return nil, err
	}
	return &Function{
		Name: name,
		Args: []Node{path, &Literal{Value: tag.String()}},
		tag:  tag,
	}, nil
}

// compilePattern anchors the pattern at the start of the subject.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)`)
}

// isWord reports whether tok can serve as an attribute name after '.'.
// Keywords are allowed there since the position is unambiguous.
func isWord(tok Token) bool {
	if tok.Kind == NAME {
		return true
	}
	_, ok := keywords[tok.Text]
	return ok
}

func describe(tok Token) string {
	switch tok.Kind {
	case EOF:
		return "end of expression"
	case STRING:
		return quoteString(tok.Text)
	case NAME, INT, FLOAT:
		return fmt.Sprintf("%s %q", tok.Kind, tok.Text)
	default:
		return fmt.Sprintf("%q", tok.Text)
	}
}
