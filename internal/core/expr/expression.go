// Package expr implements the style expression nodes used to make
// per-feature styling decisions. An expression is parsed once from its
// raw JSON array form, then evaluated many times against tile features.
package expr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Expression is a parsed expression node. Nodes are immutable after
// construction, so a single node may be evaluated concurrently.
type Expression interface {
	// Operator returns the expression's operator name, e.g. "distance".
	Operator() string

	// Evaluate computes the expression's value for one feature.
	Evaluate(ectx *EvalContext) (Value, error)

	// Serialize reconstructs the raw array form the node was parsed from.
	Serialize() Value

	// Equal reports whether the other node would evaluate identically.
	Equal(other Expression) bool

	// PossibleOutputs enumerates the values the expression can produce,
	// or returns nil when the set is not statically known.
	PossibleOutputs() []Value
}

// ParseFunc builds an expression node from its raw array form, operator
// name included.
type ParseFunc func(args []any) (Expression, error)

var registry = map[string]ParseFunc{
	"distance": parseDistance,
}

// Parse compiles a raw expression array into an executable node.
func Parse(raw []any) (Expression, error) {
	if len(raw) == 0 {
		return nil, errors.New("expression must be a non-empty array")
	}
	name, ok := raw[0].(string)
	if !ok {
		return nil, errors.New("expression operator must be a string")
	}
	parse, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown expression operator %q", name)
	}
	return parse(raw)
}

// ParseJSON decodes a JSON-encoded expression array and compiles it.
func ParseJSON(data []byte) (Expression, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding expression: %w", err)
	}
	return Parse(raw)
}
