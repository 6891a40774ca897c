// Package condition compiles and evaluates condition expressions over
// change-data-capture records.
//
// An expression such as
//
//	$OLD.count < 10 & has_changed("total")
//
// is tokenized, parsed into an immutable tree of nodes, and then evaluated any
// number of times against records. Compiled predicates carry no evaluation
// state and may be shared between goroutines. Evaluation is total: unresolved
// paths, type mismatches and undefined operations make the predicate false
// rather than failing.
package condition

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/streamrouter/internal/types"
)

// ImageRef selects the before ($OLD) or after ($NEW) image of a record.
type ImageRef int

const (
	OldImage ImageRef = iota
	NewImage
)

func (r ImageRef) String() string {
	if r == OldImage {
		return "$OLD"
	}
	return "$NEW"
}

// PathSegment represents one step of a path: a map key or a list index.
type PathSegment struct {
	Key     string // map key (mutually exclusive with Index)
	Index   int    // list index (mutually exclusive with Key)
	IsIndex bool   // disambiguates Index=0 from unset
}

// Operator identifies comparison and boolean operators.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
)

var operatorSymbols = map[Operator]string{
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
	OpAnd: "&",
	OpOr:  "|",
}

func (o Operator) String() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return "?"
}

// Builtin identifies a builtin function.
type Builtin int

const (
	FuncAttributeExists Builtin = iota + 1
	FuncAttributeNotExists
	FuncAttributeType
	FuncBeginsWith
	FuncContains
	FuncSize
	FuncHasChanged
	FuncIsType
	FuncMatch
)

var builtinNames = map[Builtin]string{
	FuncAttributeExists:    "attribute_exists",
	FuncAttributeNotExists: "attribute_not_exists",
	FuncAttributeType:      "attribute_type",
	FuncBeginsWith:         "begins_with",
	FuncContains:           "contains",
	FuncSize:               "size",
	FuncHasChanged:         "has_changed",
	FuncIsType:             "is_type",
	FuncMatch:              "match",
}

func (b Builtin) String() string {
	return builtinNames[b]
}

// Node is an element of a compiled predicate. Nodes are never modified after
// the parser builds them.
type Node interface {
	String() string
	node()
}

// Path navigates from an image root through map keys and list indices.
type Path struct {
	Image    ImageRef
	Segments []PathSegment
}

// Literal is a constant operand: string, int64, float64, bool or nil.
type Literal struct {
	Value any
}

// Comparison applies ==, !=, <, <=, > or >= to two operands.
type Comparison struct {
	Op    Operator
	Left  Node
	Right Node
}

// Between tests Low <= Operand <= High.
type Between struct {
	Operand Node
	Low     Node
	High    Node
}

// In tests membership of Operand in List.
type In struct {
	Operand Node
	List    []Node
}

// BoolOp joins two conditions with & or |.
type BoolOp struct {
	Op    Operator
	Left  Node
	Right Node
}

// Not negates a condition.
type Not struct {
	Operand Node
}

// Function is a builtin call. Args holds the operands in source order; the
// parser also stores the validated type tag, has_changed keys and literal
// regex so evaluation does no parsing.
type Function struct {
	Name Builtin
	Args []Node

	tag     types.Type
	keys    []string
	pattern *regexp.Regexp
}

func (*Path) node()       {}
func (*Literal) node()    {}
func (*Comparison) node() {}
func (*Between) node()    {}
func (*In) node()         {}
func (*BoolOp) node()     {}
func (*Not) node()        {}
func (*Function) node()   {}

func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Image.String())
	for _, seg := range p.Segments {
		switch {
		case seg.IsIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
		case isIdentifier(seg.Key):
			b.WriteByte('.')
			b.WriteString(seg.Key)
		default:
			b.WriteByte('[')
			b.WriteString(quoteString(seg.Key))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return quoteString(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		return "?"
	}
}

func (c *Comparison) String() string {
	return c.Left.String() + " " + c.Op.String() + " " + c.Right.String()
}

func (b *Between) String() string {
	return b.Operand.String() + " BETWEEN " + b.Low.String() + " AND " + b.High.String()
}

func (in *In) String() string {
	items := make([]string, len(in.List))
	for i, n := range in.List {
		items[i] = n.String()
	}
	return in.Operand.String() + " IN (" + strings.Join(items, ", ") + ")"
}

func (b *BoolOp) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

func (n *Not) String() string {
	return "NOT " + n.Operand.String()
}

func (f *Function) String() string {
	switch f.Name {
	case FuncMatch:
		return f.Args[0].String() + " =~ " + f.Args[1].String()
	case FuncHasChanged:
		keys := make([]string, len(f.keys))
		for i, k := range f.keys {
			keys[i] = quoteString(k)
		}
		return "has_changed(" + strings.Join(keys, ", ") + ")"
	}
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name.String() + "(" + strings.Join(args, ", ") + ")"
}

// Predicate is a compiled condition expression.
type Predicate struct {
	Source string
	Root   Node
	cost   int
}

// Cost is the estimated evaluation cost of the whole predicate.
func (p *Predicate) Cost() int {
	return p.cost
}

// String renders the compiled form. Compiling the rendering yields an
// equivalent predicate.
func (p *Predicate) String() string {
	if p == nil || p.Root == nil {
		return ""
	}
	return p.Root.String()
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '-'):
		default:
			return false
		}
	}
	return true
}
