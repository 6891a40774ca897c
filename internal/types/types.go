// Package types provides domain models shared across streamrouter components.
//
// Records carry two images of a changed item plus the operation that produced
// them. Values inside images use plain Go types (see values.go) so decoders,
// the condition evaluator, and handlers agree on one data model without
// depending on each other.
package types

import (
	"fmt"
	"strings"
)

// RouteID represents a UUIDv7 route identifier.
type RouteID string

// Operation is the kind of change captured by a record.
type Operation int

const (
	OperationUnknown Operation = iota
	OperationInsert
	OperationUpdate
	OperationRemove
)

// Operations lists every known operation in declaration order.
var Operations = []Operation{OperationInsert, OperationUpdate, OperationRemove}

func (o Operation) String() string {
	switch o {
	case OperationInsert:
		return "INSERT"
	case OperationUpdate:
		return "UPDATE"
	case OperationRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// ParseOperation accepts INSERT, UPDATE (or the stream name MODIFY) and REMOVE,
// case-insensitively.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSERT":
		return OperationInsert, nil
	case "UPDATE", "MODIFY":
		return OperationUpdate, nil
	case "REMOVE":
		return OperationRemove, nil
	default:
		return OperationUnknown, fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// ParseOperations parses a list of operation names, rejecting duplicates.
func ParseOperations(names []string) ([]Operation, error) {
	ops := make([]Operation, 0, len(names))
	seen := make(map[Operation]bool, len(names))
	for _, name := range names {
		op, err := ParseOperation(name)
		if err != nil {
			return nil, err
		}
		if seen[op] {
			return nil, fmt.Errorf("duplicate operation %s", op)
		}
		seen[op] = true
		ops = append(ops, op)
	}
	return ops, nil
}

// Image is one snapshot of an item's attributes.
type Image map[string]any

// Record is a single change-data-capture record: the item before and after the
// change, plus metadata describing where it came from.
type Record struct {
	ID             string
	Operation      Operation
	Old            Image
	New            Image
	SequenceNumber string
	Source         string
}

// NewRecord builds a record, replacing missing images with empty ones so path
// lookups resolve to not-found instead of failing.
func NewRecord(op Operation, old, new Image) *Record {
	r := &Record{Operation: op, Old: old, New: new}
	r.Normalize()
	return r
}

// Normalize replaces nil images with empty ones.
func (r *Record) Normalize() {
	if r.Old == nil {
		r.Old = Image{}
	}
	if r.New == nil {
		r.New = Image{}
	}
}

// RouteDefinition is the storage form of a route: everything needed to
// register it except the handler implementation, which is looked up by name.
type RouteDefinition struct {
	RouteID    RouteID  `yaml:"id,omitempty" json:"id,omitempty"`
	Name       string   `yaml:"name" json:"name"`
	Operations []string `yaml:"operations" json:"operations"`
	Condition  string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Handler    string   `yaml:"handler" json:"handler"`
}

// Resource limits enforced by the condition compiler and the router.
const (
	// MaxExpressionLength bounds source text accepted by the compiler.
	MaxExpressionLength = 4096

	// MaxExpressionDepth bounds NOT/parenthesis nesting to keep the recursive
	// parser and evaluator off deep stacks.
	MaxExpressionDepth = 64

	// MaxPathDepth bounds the number of steps after $OLD/$NEW.
	MaxPathDepth = 32

	// MaxInOperatorValues bounds IN list size.
	MaxInOperatorValues = 100

	// MaxHasChangedKeys bounds the key list of has_changed.
	MaxHasChangedKeys = 64
)
