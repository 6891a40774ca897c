// internal/types/values.go
package types

/*
 * Value model and type tags.
 *
 * Images hold plain Go values. The closed set of type tags mirrors the
 * key-value store attribute types:
 *
 *   S     string
 *   N     any Go integer or float kind
 *   B     []byte
 *   SS    StringSet
 *   NS    NumberSet
 *   BS    BinarySet
 *   L     []any
 *   M     map[string]any (or Image)
 *   NULL  nil
 *   BOOL  bool
 *
 * Anything else (including NotFound) has TypeUnknown, which no tag name
 * parses to, so is_type never matches it.
 */

// Type is a data-model type tag.
type Type int

const (
	TypeUnknown Type = iota
	TypeString
	TypeNumber
	TypeBinary
	TypeStringSet
	TypeNumberSet
	TypeBinarySet
	TypeList
	TypeMap
	TypeNull
	TypeBool
)

var typeNames = [...]string{
	TypeUnknown:   "UNKNOWN",
	TypeString:    "S",
	TypeNumber:    "N",
	TypeBinary:    "B",
	TypeStringSet: "SS",
	TypeNumberSet: "NS",
	TypeBinarySet: "BS",
	TypeList:      "L",
	TypeMap:       "M",
	TypeNull:      "NULL",
	TypeBool:      "BOOL",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[TypeUnknown]
	}
	return typeNames[t]
}

// ParseType maps a tag name (S, N, B, SS, NS, BS, L, M, NULL, BOOL) to its Type.
func ParseType(name string) (Type, bool) {
	for t := TypeString; t <= TypeBool; t++ {
		if typeNames[t] == name {
			return t, true
		}
	}
	return TypeUnknown, false
}

// StringSet is a set of strings. Order carries no meaning.
type StringSet []string

// NumberSet is a set of numbers. Order carries no meaning.
type NumberSet []float64

// BinarySet is a set of binary blobs. Order carries no meaning.
type BinarySet [][]byte

type notFound struct{}

func (notFound) String() string { return "<not found>" }

// NotFound is the result of resolving a path that does not exist.
var NotFound any = notFound{}

// IsNotFound reports whether v is the NotFound sentinel.
func IsNotFound(v any) bool {
	_, ok := v.(notFound)
	return ok
}

// TypeOf returns the type tag of v.
func TypeOf(v any) Type {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBool
	case []byte:
		return TypeBinary
	case StringSet:
		return TypeStringSet
	case NumberSet:
		return TypeNumberSet
	case BinarySet:
		return TypeBinarySet
	case []any:
		return TypeList
	case map[string]any, Image:
		return TypeMap
	}
	if _, ok := ToNumber(v); ok {
		return TypeNumber
	}
	return TypeUnknown
}

// ToNumber converts any Go numeric kind to float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToInteger reports v as an integer when it is one of Go's integer kinds.
// Signed kinds are returned in i with signed set, unsigned kinds in u.
func ToInteger(v any) (i int64, u uint64, signed bool, ok bool) {
	switch n := v.(type) {
	case int:
		return int64(n), 0, true, true
	case int8:
		return int64(n), 0, true, true
	case int16:
		return int64(n), 0, true, true
	case int32:
		return int64(n), 0, true, true
	case int64:
		return n, 0, true, true
	case uint:
		return 0, uint64(n), false, true
	case uint8:
		return 0, uint64(n), false, true
	case uint16:
		return 0, uint64(n), false, true
	case uint32:
		return 0, uint64(n), false, true
	case uint64:
		return 0, n, false, true
	default:
		return 0, 0, false, false
	}
}

// AsMap returns v as a plain map when it is a map value.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Image:
		return map[string]any(m), true
	default:
		return nil, false
	}
}
