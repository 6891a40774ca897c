// internal/condition/lexer.go
package condition

import (
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

/*
 * Tokenizer for condition expressions.
 *
 * Rules are tried in declaration order. Keywords and function names are
 * lexed as Name and then looked up in the keyword table, so a word only
 * becomes a keyword when it matches one in full (size-x and contains_all are
 * names).
 *
 * Whitespace (including newlines) is consumed as a token and dropped; the
 * line number on each token comes from the lexer position and is used only in
 * error messages.
 *
 * Lexing never fails except on a character no rule accepts, which is
 * reported as a LexicalError with the line and offending character.
 */

// Kind identifies a token class.
type Kind int

const (
	EOF Kind = iota
	NAME
	STRING
	INT
	FLOAT
	OLD
	NEW
	TRUE
	FALSE
	NULL
	BETWEEN
	AND
	OR
	NOT
	IN
	EQ
	NE
	GT
	GTE
	LT
	LTE
	MATCH
	ATTRIBUTE_EXISTS
	ATTRIBUTE_NOT_EXISTS
	ATTRIBUTE_TYPE
	BEGINS_WITH
	CONTAINS
	SIZE
	HAS_CHANGED
	IS_TYPE
	LPAREN
	RPAREN
	LBRACKET
	RBRACKET
	COMMA
	DOT
)

var kindNames = map[Kind]string{
	EOF:                  "end of expression",
	NAME:                 "name",
	STRING:               "string",
	INT:                  "integer",
	FLOAT:                "float",
	OLD:                  "$OLD",
	NEW:                  "$NEW",
	TRUE:                 "true",
	FALSE:                "false",
	NULL:                 "null",
	BETWEEN:              "BETWEEN",
	AND:                  "AND",
	OR:                   "OR",
	NOT:                  "NOT",
	IN:                   "IN",
	EQ:                   "==",
	NE:                   "!=",
	GT:                   ">",
	GTE:                  ">=",
	LT:                   "<",
	LTE:                  "<=",
	MATCH:                "=~",
	ATTRIBUTE_EXISTS:     "attribute_exists",
	ATTRIBUTE_NOT_EXISTS: "attribute_not_exists",
	ATTRIBUTE_TYPE:       "attribute_type",
	BEGINS_WITH:          "begins_with",
	CONTAINS:             "contains",
	SIZE:                 "size",
	HAS_CHANGED:          "has_changed",
	IS_TYPE:              "is_type",
	LPAREN:               "(",
	RPAREN:               ")",
	LBRACKET:             "[",
	RBRACKET:             "]",
	COMMA:                ",",
	DOT:                  ".",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Token is one lexical unit. For STRING tokens Text holds the unquoted,
// unescaped value.
type Token struct {
	Kind Kind
	Text string
	Line int
}

var keywords = map[string]Kind{
	"BETWEEN":              BETWEEN,
	"AND":                  AND,
	"OR":                   OR,
	"NOT":                  NOT,
	"IN":                   IN,
	"attribute_exists":     ATTRIBUTE_EXISTS,
	"attribute_not_exists": ATTRIBUTE_NOT_EXISTS,
	"attribute_type":       ATTRIBUTE_TYPE,
	"begins_with":          BEGINS_WITH,
	"contains":             CONTAINS,
	"size":                 SIZE,
	"has_changed":          HAS_CHANGED,
	"is_type":              IS_TYPE,
	"true":                 TRUE,
	"True":                 TRUE,
	"false":                FALSE,
	"False":                FALSE,
	"null":                 NULL,
}

var operators = map[string]Kind{
	"==": EQ,
	"=":  EQ,
	"!=": NE,
	"<>": NE,
	">=": GTE,
	"<=": LTE,
	"=~": MATCH,
	">":  GT,
	"<":  LT,
	"&":  AND,
	"|":  OR,
	"(":  LPAREN,
	")":  RPAREN,
	"[":  LBRACKET,
	"]":  RBRACKET,
	",":  COMMA,
	".":  DOT,
}

var expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Old", Pattern: `\$OLD\b`},
	{Name: "New", Pattern: `\$NEW\b`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Name", Pattern: `[a-zA-Z_][a-zA-Z0-9_\-]*`},
	{Name: "Operator", Pattern: `==|!=|<>|>=|<=|=~|=|>|<|&|\||[()\[\],.]`},
})

var symbolNames = func() map[lexer.TokenType]string {
	names := make(map[lexer.TokenType]string)
	for name, tt := range expressionLexer.Symbols() {
		names[tt] = name
	}
	return names
}()

// Tokenize converts source text into tokens. The returned slice never contains
// the EOF token.
func Tokenize(source string) ([]Token, error) {
	lex, err := expressionLexer.LexString("", source)
	if err != nil {
		return nil, err
	}

	var tokens []Token
	offset := 0
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, lexicalErrorAt(source, offset)
		}
		if tok.EOF() {
			break
		}
		offset = tok.Pos.Offset + len(tok.Value)

		var kind Kind
		text := tok.Value
		switch symbolNames[tok.Type] {
		case "Whitespace":
			continue
		case "Old":
			kind = OLD
		case "New":
			kind = NEW
		case "String":
			kind = STRING
			text = unquote(tok.Value)
		case "Float":
			kind = FLOAT
		case "Int":
			kind = INT
		case "Name":
			kind = NAME
			if kw, ok := keywords[tok.Value]; ok {
				kind = kw
			}
		case "Operator":
			kind = operators[tok.Value]
		default:
			return nil, lexicalErrorAt(source, tok.Pos.Offset)
		}
		tokens = append(tokens, Token{Kind: kind, Text: text, Line: tok.Pos.Line})
	}
	return tokens, nil
}

// lexicalErrorAt reports the character at offset, which is where the lexer
// stopped making progress.
func lexicalErrorAt(source string, offset int) *LexicalError {
	if offset > len(source) {
		offset = len(source)
	}
	r, _ := utf8.DecodeRuneInString(source[offset:])
	return &LexicalError{
		Line: 1 + strings.Count(source[:offset], "\n"),
		Char: r,
	}
}

// unquote strips the delimiters of a string literal. A backslash escapes the
// delimiter or another backslash; any other escape is kept verbatim so regex
// patterns like '\d+' survive.
func unquote(lit string) string {
	if len(lit) < 2 {
		return lit
	}
	quote := lit[0]
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) && (body[i+1] == quote || body[i+1] == '\\') {
			b.WriteByte(body[i+1])
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
