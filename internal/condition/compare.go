// internal/condition/compare.go
package condition

import (
	"bytes"
	"cmp"
	"sort"
	"strings"

	"github.com/solatis/streamrouter/internal/types"
)

/*
 * Equality and ordering over the value model.
 *
 * No implicit coercion: a string never equals a number, and ordering is only
 * defined between two numbers, two strings or two binaries. Numbers compare
 * numerically regardless of their Go kind (int64 literal vs float64 decoded
 * value). Two integer kinds compare exactly, without passing through
 * float64. Lists and maps compare deeply, sets ignore element order.
 *
 * Null-ish values: NotFound and nil are equal to each other and to
 * themselves, and to nothing else.
 *
 * The undefined sentinel (size of an unsized value) is never equal to
 * anything, itself included, and every comparison involving it is false,
 * including !=.
 */

type undefined struct{}

func (undefined) String() string { return "<undefined>" }

var undefinedValue any = undefined{}

func isUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

func isNullish(v any) bool {
	return v == nil || types.IsNotFound(v)
}

// compare applies a comparison operator to two evaluated operands.
func compare(op Operator, a, b any) bool {
	if isUndefined(a) || isUndefined(b) {
		return false
	}
	switch op {
	case OpEq:
		return equal(a, b)
	case OpNe:
		return !equal(a, b)
	case OpLt, OpLte, OpGt, OpGte:
		c, ok := order(a, b)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	default:
		return false
	}
}

// equal reports deep equality without cross-type coercion.
func equal(a, b any) bool {
	if isUndefined(a) || isUndefined(b) {
		return false
	}
	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}
	if c, ok := compareIntegers(a, b); ok {
		return c == 0
	}
	if na, ok := types.ToNumber(a); ok {
		nb, ok := types.ToNumber(b)
		return ok && na == nb
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any, types.Image:
		am, _ := types.AsMap(a)
		bm, ok := types.AsMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			w, ok := bm[k]
			if !ok || !equal(v, w) {
				return false
			}
		}
		return true
	case types.StringSet:
		bv, ok := b.(types.StringSet)
		return ok && equalStringSets(av, bv)
	case types.NumberSet:
		bv, ok := b.(types.NumberSet)
		return ok && equalNumberSets(av, bv)
	case types.BinarySet:
		bv, ok := b.(types.BinarySet)
		return ok && equalBinarySets(av, bv)
	}
	return false
}

// order performs three-way comparison (-1/0/1) for numbers, strings and
// binaries. The second result is false for any other pairing.
func order(a, b any) (int, bool) {
	if c, ok := compareIntegers(a, b); ok {
		return c, true
	}
	if na, ok := types.ToNumber(a); ok {
		nb, ok := types.ToNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		case na == nb:
			return 0, true
		default:
			// NaN
			return 0, false
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), true
		}
	}
	return 0, false
}

// compareIntegers orders two integer kinds exactly. The second result is
// false unless both operands are integers.
func compareIntegers(a, b any) (int, bool) {
	ia, ua, signedA, ok := types.ToInteger(a)
	if !ok {
		return 0, false
	}
	ib, ub, signedB, ok := types.ToInteger(b)
	if !ok {
		return 0, false
	}
	switch {
	case signedA && signedB:
		return cmp.Compare(ia, ib), true
	case !signedA && !signedB:
		return cmp.Compare(ua, ub), true
	case signedA:
		if ia < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(ia), ub), true
	default:
		if ib < 0 {
			return 1, true
		}
		return cmp.Compare(ua, uint64(ib)), true
	}
}

func equalStringSets(a, b types.StringSet) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func equalNumberSets(a, b types.NumberSet) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func equalBinarySets(a, b types.BinarySet) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([][]byte(nil), a...)
	bs := append([][]byte(nil), b...)
	less := func(s [][]byte) func(i, j int) bool {
		return func(i, j int) bool { return bytes.Compare(s[i], s[j]) < 0 }
	}
	sort.Slice(as, less(as))
	sort.Slice(bs, less(bs))
	for i := range as {
		if !bytes.Equal(as[i], bs[i]) {
			return false
		}
	}
	return true
}
