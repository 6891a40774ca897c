package router

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/streamrouter/internal/condition"
	"github.com/solatis/streamrouter/internal/types"
)

/*
 * Route definitions are the stored form of routes (database rows, YAML
 * files). They reference handlers by name and are turned into RouteSpecs by
 * resolving the name against a Registry.
 *
 * File format:
 *
 *   routes:
 *     - name: big-orders
 *       operations: [INSERT, MODIFY]
 *       condition: $NEW.total > 100
 *       handler: forward:orders
 */

// RouteFile is the top-level document of a route definition file.
type RouteFile struct {
	Routes []types.RouteDefinition `yaml:"routes"`
}

// ParseDefinitions decodes a route definition document.
func ParseDefinitions(data []byte) ([]types.RouteDefinition, error) {
	var file RouteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route definitions: %w", err)
	}
	return file.Routes, nil
}

// LoadDefinitions reads and decodes a route definition file.
func LoadDefinitions(path string) ([]types.RouteDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file: %w", err)
	}
	return ParseDefinitions(data)
}

// MarshalDefinitions encodes definitions in the route file format.
func MarshalDefinitions(defs []types.RouteDefinition) ([]byte, error) {
	return yaml.Marshal(RouteFile{Routes: defs})
}

// SpecFromDefinition resolves a definition's operations and handler name.
// The condition is left as source text; Register compiles it.
func SpecFromDefinition(def types.RouteDefinition, reg *Registry) (RouteSpec, error) {
	if len(def.Operations) == 0 {
		return RouteSpec{}, fmt.Errorf("route %q: %w", def.Name, types.ErrNoOperations)
	}
	ops, err := types.ParseOperations(def.Operations)
	if err != nil {
		return RouteSpec{}, fmt.Errorf("route %q: %w", def.Name, err)
	}
	handler, err := reg.Lookup(def.Handler)
	if err != nil {
		return RouteSpec{}, fmt.Errorf("route %q: %w", def.Name, err)
	}
	return RouteSpec{
		ID:         def.RouteID,
		Name:       def.Name,
		Operations: ops,
		Condition:  def.Condition,
		Handler:    handler,
	}, nil
}

// Load replaces the router's routes with the given definitions. Either every
// definition is valid and the set is swapped, or nothing changes.
func (r *Router) Load(defs []types.RouteDefinition, reg *Registry) error {
	specs := make([]RouteSpec, 0, len(defs))
	for _, def := range defs {
		spec, err := SpecFromDefinition(def, reg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}
	return r.Replace(specs)
}

// ValidateDefinition checks a definition without registering it: operations,
// handler name shape, and that the condition compiles.
func ValidateDefinition(def types.RouteDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("route name required")
	}
	if len(def.Operations) == 0 {
		return fmt.Errorf("route %q: %w", def.Name, types.ErrNoOperations)
	}
	if _, err := types.ParseOperations(def.Operations); err != nil {
		return fmt.Errorf("route %q: %w", def.Name, err)
	}
	if def.Handler == "" {
		return fmt.Errorf("route %q: %w", def.Name, types.ErrNoHandler)
	}
	if def.Handler != HandlerLog && !(strings.HasPrefix(def.Handler, ForwardPrefix) && len(def.Handler) > len(ForwardPrefix)) {
		return fmt.Errorf("route %q: %w: %s", def.Name, types.ErrUnknownHandler, def.Handler)
	}
	if def.Condition != "" {
		if _, err := condition.CompileCached(def.Condition); err != nil {
			return fmt.Errorf("route %q: %w", def.Name, err)
		}
	}
	return nil
}
