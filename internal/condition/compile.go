// internal/condition/compile.go
package condition

import (
	"fmt"

	"github.com/solatis/streamrouter/internal/types"
)

// Compile tokenizes and parses source into a predicate. Errors are
// *LexicalError or *SyntaxError; both match types.ErrInvalidExpression.
func Compile(source string) (*Predicate, error) {
	if len(source) > types.MaxExpressionLength {
		return nil, &SyntaxError{
			Context: fmt.Sprintf("expression longer than %d bytes", types.MaxExpressionLength),
			Err:     types.ErrExpressionTooLong,
		}
	}

	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(tokens)
	if err != nil {
		return nil, err
	}

	root := orderByCost(parsed.Root)
	return &Predicate{
		Source: source,
		Root:   root,
		cost:   cost(root),
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for expressions
// fixed at build time.
func MustCompile(source string) *Predicate {
	p, err := Compile(source)
	if err != nil {
		panic(fmt.Sprintf("condition: Compile(%q): %v", source, err))
	}
	return p
}
