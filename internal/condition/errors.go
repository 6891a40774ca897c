package condition

import (
	"fmt"

	"github.com/solatis/streamrouter/internal/types"
)

// LexicalError reports a character no token rule accepts.
type LexicalError struct {
	Line int
	Char rune
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("line %d: bad character %q", e.Line, e.Char)
}

// Unwrap lets callers match any compile error with errors.Is(err, types.ErrInvalidExpression).
func (e *LexicalError) Unwrap() error {
	return types.ErrInvalidExpression
}

// SyntaxError reports a token sequence that does not reduce to a single
// condition, or a reference to an unknown type tag. Err, when set, carries the
// specific sentinel (for example types.ErrPathTooDeep).
type SyntaxError struct {
	Line    int
	Context string
	Err     error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: syntax error: %s", e.Line, e.Context)
	}
	return "syntax error: " + e.Context
}

func (e *SyntaxError) Unwrap() []error {
	if e.Err != nil {
		return []error{types.ErrInvalidExpression, e.Err}
	}
	return []error{types.ErrInvalidExpression}
}
