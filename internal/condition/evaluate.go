// internal/condition/evaluate.go
package condition

import "github.com/solatis/streamrouter/internal/types"

/*
 * Predicate evaluation.
 *
 * A single recursive walk over the compiled tree. Conditions produce bool,
 * operands produce values from the data model (or the NotFound / undefined
 * sentinels). Nothing is mutated: neither the predicate nor the record.
 *
 * & and | short-circuit left to right; the compiler has already placed the
 * cheaper operand on the left.
 */

var emptyRecord = types.Record{Old: types.Image{}, New: types.Image{}}

// Evaluate reports whether the record satisfies the predicate. A nil record
// is treated as one with two empty images. Never panics on record shape.
func Evaluate(p *Predicate, rec *types.Record) bool {
	if p == nil || p.Root == nil {
		return false
	}
	if rec == nil {
		rec = &emptyRecord
	}
	return evalCondition(p.Root, rec)
}

func evalCondition(n Node, rec *types.Record) bool {
	switch n := n.(type) {
	case *BoolOp:
		if n.Op == OpAnd {
			return evalCondition(n.Left, rec) && evalCondition(n.Right, rec)
		}
		return evalCondition(n.Left, rec) || evalCondition(n.Right, rec)
	case *Not:
		return !evalCondition(n.Operand, rec)
	case *Comparison:
		return compare(n.Op, evalOperand(n.Left, rec), evalOperand(n.Right, rec))
	case *Between:
		value := evalOperand(n.Operand, rec)
		return compare(OpLte, evalOperand(n.Low, rec), value) &&
			compare(OpLte, value, evalOperand(n.High, rec))
	case *In:
		value := evalOperand(n.Operand, rec)
		for _, item := range n.List {
			if equal(value, evalOperand(item, rec)) {
				return true
			}
		}
		return false
	case *Function:
		return callBuiltin(n, rec)
	default:
		return false
	}
}

// evalOperand produces the value of an operand node.
func evalOperand(n Node, rec *types.Record) any {
	switch n := n.(type) {
	case *Path:
		return resolve(n, rec)
	case *Literal:
		return n.Value
	case *Function:
		if n.Name == FuncSize {
			return size(evalOperand(n.Args[0], rec))
		}
	}
	return undefinedValue
}
