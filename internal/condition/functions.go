// internal/condition/functions.go
package condition

import (
	"strings"
	"unicode/utf8"

	"github.com/solatis/streamrouter/internal/types"
)

// callBuiltin evaluates a boolean builtin. size is an operand and is handled
// by evalOperand.
func callBuiltin(f *Function, rec *types.Record) bool {
	switch f.Name {
	case FuncAttributeExists:
		return !types.IsNotFound(evalOperand(f.Args[0], rec))
	case FuncAttributeNotExists:
		return types.IsNotFound(evalOperand(f.Args[0], rec))
	case FuncBeginsWith:
		return beginsWith(evalOperand(f.Args[0], rec), evalOperand(f.Args[1], rec))
	case FuncContains:
		return contains(evalOperand(f.Args[0], rec), evalOperand(f.Args[1], rec))
	case FuncHasChanged:
		return hasChanged(f.keys, rec)
	case FuncIsType, FuncAttributeType:
		return types.TypeOf(evalOperand(f.Args[0], rec)) == f.tag
	case FuncMatch:
		return match(f, rec)
	default:
		return false
	}
}

func beginsWith(value, prefix any) bool {
	s, ok1 := value.(string)
	p, ok2 := prefix.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.HasPrefix(s, p)
}

// contains is substring search on strings and element membership on sets
// and lists.
func contains(value, operand any) bool {
	switch v := value.(type) {
	case string:
		s, ok := operand.(string)
		return ok && strings.Contains(v, s)
	case types.StringSet:
		s, ok := operand.(string)
		if !ok {
			return false
		}
		for _, elem := range v {
			if elem == s {
				return true
			}
		}
		return false
	case types.NumberSet:
		for _, elem := range v {
			if equal(elem, operand) {
				return true
			}
		}
		return false
	case types.BinarySet:
		for _, elem := range v {
			if equal(elem, operand) {
				return true
			}
		}
		return false
	case []any:
		for _, elem := range v {
			if equal(elem, operand) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// size returns the length of sized values and the undefined sentinel for
// everything else.
func size(value any) any {
	switch v := value.(type) {
	case string:
		return int64(utf8.RuneCountInString(v))
	case []byte:
		return int64(len(v))
	case types.StringSet:
		return int64(len(v))
	case types.NumberSet:
		return int64(len(v))
	case types.BinarySet:
		return int64(len(v))
	case []any:
		return int64(len(v))
	case map[string]any:
		return int64(len(v))
	case types.Image:
		return int64(len(v))
	default:
		return undefinedValue
	}
}

// hasChanged reports whether any key was added, removed, or changed between
// the two images. Short-circuits on the first changed key.
func hasChanged(keys []string, rec *types.Record) bool {
	for _, k := range keys {
		oldValue, inOld := rec.Old[k]
		newValue, inNew := rec.New[k]
		if inOld != inNew {
			return true
		}
		if inOld && !equal(oldValue, newValue) {
			return true
		}
	}
	return false
}

// match tests the subject against a regex anchored at its start. Literal
// patterns were compiled by the parser; patterns read from the record are
// compiled here and an invalid one simply fails the match.
func match(f *Function, rec *types.Record) bool {
	subject, ok := evalOperand(f.Args[0], rec).(string)
	if !ok {
		return false
	}
	re := f.pattern
	if re == nil {
		pattern, ok := evalOperand(f.Args[1], rec).(string)
		if !ok {
			return false
		}
		var err error
		re, err = compilePattern(pattern)
		if err != nil {
			return false
		}
	}
	return re.MatchString(subject)
}

