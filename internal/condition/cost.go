// internal/condition/cost.go
package condition

import "sort"

/*
 * Cost model for predicate evaluation.
 *
 * cost = sum of path lookups + operator cost, recursively over the tree.
 *
 * The operands of a chain of & (or of |) are reordered cheapest first at
 * compile time. Evaluation is pure and total, so the result is unchanged and
 * the cheap side gets the first chance to short-circuit. The sort is stable:
 * equal-cost operands keep their source order, so the compiled form of a
 * given source text is deterministic.
 */

const (
	CostLiteral       = 0
	CostPathRoot      = 1
	CostPathSegment   = 2
	CostExists        = 1
	CostIsType        = 1
	CostEq            = 5
	CostOrder         = 7
	CostInPerValue    = 2
	CostSize          = 3
	CostBeginsWith    = 10
	CostContains      = 12
	CostHasChangedKey = 20
	CostMatch         = 50
	CostNot           = 1
)

func cost(n Node) int {
	switch n := n.(type) {
	case *Path:
		return CostPathRoot + CostPathSegment*len(n.Segments)
	case *Literal:
		return CostLiteral
	case *Comparison:
		op := CostOrder
		if n.Op == OpEq || n.Op == OpNe {
			op = CostEq
		}
		return op + cost(n.Left) + cost(n.Right)
	case *Between:
		return 2*CostOrder + cost(n.Operand) + cost(n.Low) + cost(n.High)
	case *In:
		c := cost(n.Operand)
		for _, item := range n.List {
			c += CostInPerValue + cost(item)
		}
		return c
	case *BoolOp:
		return cost(n.Left) + cost(n.Right)
	case *Not:
		return CostNot + cost(n.Operand)
	case *Function:
		c := 0
		for _, a := range n.Args {
			c += cost(a)
		}
		switch n.Name {
		case FuncAttributeExists, FuncAttributeNotExists:
			c += CostExists
		case FuncIsType, FuncAttributeType:
			c += CostIsType
		case FuncSize:
			c += CostSize
		case FuncBeginsWith:
			c += CostBeginsWith
		case FuncContains:
			c += CostContains
		case FuncHasChanged:
			c += CostHasChangedKey * len(n.keys)
		case FuncMatch:
			c += CostMatch
		}
		return c
	default:
		return 0
	}
}

// orderByCost rebuilds & and | chains with their operands sorted by ascending
// cost. Other nodes are returned as-is apart from their rewritten children.
func orderByCost(n Node) Node {
	switch n := n.(type) {
	case *BoolOp:
		var operands []Node
		flatten(n, n.Op, &operands)
		for i, op := range operands {
			operands[i] = orderByCost(op)
		}
		sort.SliceStable(operands, func(i, j int) bool {
			return cost(operands[i]) < cost(operands[j])
		})
		root := operands[0]
		for _, op := range operands[1:] {
			root = &BoolOp{Op: n.Op, Left: root, Right: op}
		}
		return root
	case *Not:
		return &Not{Operand: orderByCost(n.Operand)}
	default:
		return n
	}
}

func flatten(n Node, op Operator, out *[]Node) {
	if b, ok := n.(*BoolOp); ok && b.Op == op {
		flatten(b.Left, op, out)
		flatten(b.Right, op, out)
		return
	}
	*out = append(*out, n)
}
