// internal/condition/parser_test.go
package condition

import (
	"errors"
	"strings"
	"testing"

	"github.com/solatis/streamrouter/internal/types"
)

func mustParse(t *testing.T, source string) *Predicate {
	t.Helper()
	tokens, err := Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenize(%q) error = %v", source, err)
	}
	p, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", source, err)
	}
	return p
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "NOT binds tighter than AND",
			source: `NOT $OLD.a == "x" & $OLD.b == "y"`,
			want:   `(NOT $OLD.a == "x" & $OLD.b == "y")`,
		},
		{
			name:   "AND binds tighter than OR",
			source: `$OLD.a == 1 | $OLD.b == 2 & $OLD.c == 3`,
			want:   `($OLD.a == 1 | ($OLD.b == 2 & $OLD.c == 3))`,
		},
		{
			name:   "AND is left associative",
			source: `$OLD.a == 1 & $OLD.b == 2 & $OLD.c == 3`,
			want:   `(($OLD.a == 1 & $OLD.b == 2) & $OLD.c == 3)`,
		},
		{
			name:   "parentheses override",
			source: `($OLD.a == 1 | $OLD.b == 2) & $OLD.c == 3`,
			want:   `(($OLD.a == 1 | $OLD.b == 2) & $OLD.c == 3)`,
		},
		{
			name:   "double negation",
			source: `NOT NOT attribute_exists($NEW.a)`,
			want:   `NOT NOT attribute_exists($NEW.a)`,
		},
		{
			name:   "NOT over group",
			source: `NOT ($OLD.a == 1 OR $OLD.b == 2)`,
			want:   `NOT ($OLD.a == 1 | $OLD.b == 2)`,
		},
		{
			name:   "BETWEEN inside AND chain",
			source: `$OLD.n BETWEEN 1 AND 10 AND $OLD.x == 1`,
			want:   `($OLD.n BETWEEN 1 AND 10 & $OLD.x == 1)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.source).String()
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.source, got, tt.want)
			}
		})
	}
}

func TestParse_NotTree(t *testing.T) {
	p := mustParse(t, `NOT $OLD.a == "x" & $OLD.b == "y"`)

	and, ok := p.Root.(*BoolOp)
	if !ok || and.Op != OpAnd {
		t.Fatalf("root = %T, want *BoolOp(&)", p.Root)
	}
	not, ok := and.Left.(*Not)
	if !ok {
		t.Fatalf("left = %T, want *Not", and.Left)
	}
	if _, ok := not.Operand.(*Comparison); !ok {
		t.Errorf("NOT operand = %T, want *Comparison", not.Operand)
	}
	if _, ok := and.Right.(*Comparison); !ok {
		t.Errorf("right = %T, want *Comparison", and.Right)
	}
}

func TestParse_Operands(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`$NEW.a == 1.5`, `$NEW.a == 1.5`},
		{`$NEW.a == 99999999999999999999`, `$NEW.a == 100000000000000000000.0`},
		{`$NEW.a = true`, `$NEW.a == true`},
		{`$NEW.a <> False`, `$NEW.a != false`},
		{`$NEW.a == null`, `$NEW.a == null`},
		{`$NEW.a == 'single'`, `$NEW.a == "single"`},
		{`$NEW["a b"][2].c == 1`, `$NEW["a b"][2].c == 1`},
		{`$NEW.size == 1`, `$NEW.size == 1`},
		{`$NEW.AND == 1`, `$NEW.AND == 1`},
		{`$NEW.item-2 == 1`, `$NEW.item-2 == 1`},
		{`size($NEW.tags) > 2`, `size($NEW.tags) > 2`},
		{`$OLD.s IN ("a", 'b', 3)`, `$OLD.s IN ("a", "b", 3)`},
		{`$OLD.s =~ '\d+'`, `$OLD.s =~ "\\d+"`},
		{`$OLD.s =~ $NEW.pattern`, `$OLD.s =~ $NEW.pattern`},
		{`begins_with($OLD.s, "ab")`, `begins_with($OLD.s, "ab")`},
		{`contains($OLD.tags, 7)`, `contains($OLD.tags, 7)`},
		{`has_changed("a")`, `has_changed("a")`},
		{`has_changed("a", "b")`, `has_changed("a", "b")`},
		{`has_changed(("a", "b"))`, `has_changed("a", "b")`},
		{`is_type($NEW.x, BOOL)`, `is_type($NEW.x, "BOOL")`},
		{`is_type($NEW.x, "NULL")`, `is_type($NEW.x, "NULL")`},
		{`attribute_type($NEW.x, SS)`, `attribute_type($NEW.x, "SS")`},
		{`attribute_not_exists($OLD.x)`, `attribute_not_exists($OLD.x)`},
	}

	for _, tt := range tests {
		got := mustParse(t, tt.source).String()
		if got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.source, got, tt.want)
		}
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{"empty", ``, nil},
		{"missing right operand", `$OLD.a ==`, nil},
		{"bare path", `$OLD.a`, nil},
		{"bare size", `size($OLD.a)`, nil},
		{"unclosed group", `($OLD.a == 1`, nil},
		{"unopened group", `$OLD.a == 1)`, nil},
		{"missing connective", `$OLD.a == 1 $NEW.b == 2`, nil},
		{"dangling OR", `$OLD.a == 1 |`, nil},
		{"leading AND", `& $OLD.a == 1`, nil},
		{"unknown type tag", `is_type($OLD.a, X)`, types.ErrUnknownType},
		{"lowercase type tag", `is_type($OLD.a, "s")`, types.ErrUnknownType},
		{"invalid regex", `$OLD.a =~ "("`, nil},
		{"numeric regex", `$OLD.a =~ 5`, nil},
		{"empty has_changed", `has_changed()`, nil},
		{"path in has_changed", `has_changed($OLD.a)`, nil},
		{"BETWEEN without AND", `$OLD.a BETWEEN 1 10`, nil},
		{"empty IN list", `$OLD.a IN ()`, nil},
		{"exists on literal", `attribute_exists("a")`, nil},
		{"float index", `$OLD.a[1.5] == 1`, nil},
		{"missing attribute after dot", `$OLD. == 1`, nil},
		{"comparison chain", `$OLD.a == 1 == 2`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.source)
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("Compile(%q) error = %v, want *SyntaxError", tt.source, err)
			}
			if !errors.Is(err, types.ErrInvalidExpression) {
				t.Errorf("errors.Is(err, ErrInvalidExpression) = false, want true")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(err, %v) = false, want true", tt.wantErr)
			}
		})
	}
}

func TestParse_ErrorLine(t *testing.T) {
	_, err := Compile("$OLD.a == 1 &\n\n$NEW.b")
	var synErr *SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("Compile() error = %v, want *SyntaxError", err)
	}
	if synErr.Line != 3 {
		t.Errorf("Line = %d, want 3", synErr.Line)
	}
}

func TestParse_Limits(t *testing.T) {
	deepPath := "$OLD" + strings.Repeat(".a", types.MaxPathDepth+1) + " == 1"
	okPath := "$OLD" + strings.Repeat(".a", types.MaxPathDepth) + " == 1"

	inList := make([]string, types.MaxInOperatorValues+1)
	for i := range inList {
		inList[i] = "1"
	}
	keys := make([]string, types.MaxHasChangedKeys+1)
	for i := range keys {
		keys[i] = `"k"`
	}

	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{"path at limit", okPath, nil},
		{"path too deep", deepPath, types.ErrPathTooDeep},
		{
			"expression too long",
			`$OLD.a == "` + strings.Repeat("x", types.MaxExpressionLength) + `"`,
			types.ErrExpressionTooLong,
		},
		{
			"NOT at limit",
			strings.Repeat("NOT ", types.MaxExpressionDepth) + "attribute_exists($OLD.a)",
			nil,
		},
		{
			"NOT too deep",
			strings.Repeat("NOT ", types.MaxExpressionDepth+1) + "attribute_exists($OLD.a)",
			types.ErrExpressionTooDeep,
		},
		{
			"parentheses too deep",
			strings.Repeat("(", types.MaxExpressionDepth+1) + "attribute_exists($OLD.a)" +
				strings.Repeat(")", types.MaxExpressionDepth+1),
			types.ErrExpressionTooDeep,
		},
		{
			"IN list at limit",
			"$OLD.a IN (" + strings.Join(inList[:types.MaxInOperatorValues], ", ") + ")",
			nil,
		},
		{
			"IN list too long",
			"$OLD.a IN (" + strings.Join(inList, ", ") + ")",
			types.ErrTooManyInValues,
		},
		{
			"has_changed too many keys",
			"has_changed(" + strings.Join(keys, ", ") + ")",
			types.ErrTooManyKeys,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.source)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Compile() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, types.ErrInvalidExpression) {
				t.Errorf("errors.Is(err, ErrInvalidExpression) = false, want true")
			}
		})
	}
}
