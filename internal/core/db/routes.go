package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/streamrouter/internal/types"
)

// routeRow mirrors the routes table. Operations are stored comma-joined in
// registration order.
type routeRow struct {
	RouteID    string    `db:"route_id"`
	Name       string    `db:"name"`
	Operations string    `db:"operations"`
	Condition  string    `db:"condition_expr"`
	Handler    string    `db:"handler"`
	Position   int64     `db:"position"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r routeRow) definition() types.RouteDefinition {
	return types.RouteDefinition{
		RouteID:    types.RouteID(r.RouteID),
		Name:       r.Name,
		Operations: strings.Split(r.Operations, ","),
		Condition:  r.Condition,
		Handler:    r.Handler,
	}
}

// RouteStore persists route definitions. Callers validate definitions
// (router.ValidateDefinition) before storing them; the store only enforces
// identity and name uniqueness.
type RouteStore struct {
	q *Queries
}

// NewRouteStore wraps loaded queries.
func NewRouteStore(q *Queries) *RouteStore {
	return &RouteStore{q: q}
}

// Create stores a new definition after all existing ones and returns it with
// its assigned ID. A definition without an ID gets a fresh UUIDv7.
func (s *RouteStore) Create(def types.RouteDefinition) (types.RouteDefinition, error) {
	if def.RouteID == "" {
		def.RouteID = types.NewRouteID()
	}
	if _, err := s.GetByName(def.Name); err == nil {
		return types.RouteDefinition{}, fmt.Errorf("%w: name %q", types.ErrDuplicateRoute, def.Name)
	} else if !errors.Is(err, types.ErrRouteNotFound) {
		return types.RouteDefinition{}, err
	}

	var position int64
	if err := s.q.Get("next-route-position", &position); err != nil {
		return types.RouteDefinition{}, fmt.Errorf("failed to allocate route position: %w", err)
	}

	now := time.Now().UTC()
	_, err := s.q.Exec("insert-route",
		string(def.RouteID), def.Name, joinOperations(def.Operations),
		def.Condition, def.Handler, position, now, now,
	)
	if err != nil {
		return types.RouteDefinition{}, fmt.Errorf("failed to insert route %q: %w", def.Name, err)
	}
	return def, nil
}

// Upsert updates the route with the same name in place (keeping its ID and
// position) or creates it.
func (s *RouteStore) Upsert(def types.RouteDefinition) (types.RouteDefinition, error) {
	existing, err := s.GetByName(def.Name)
	if errors.Is(err, types.ErrRouteNotFound) {
		return s.Create(def)
	}
	if err != nil {
		return types.RouteDefinition{}, err
	}

	def.RouteID = existing.RouteID
	_, err = s.q.Exec("update-route",
		def.Name, joinOperations(def.Operations), def.Condition, def.Handler,
		time.Now().UTC(), string(def.RouteID),
	)
	if err != nil {
		return types.RouteDefinition{}, fmt.Errorf("failed to update route %q: %w", def.Name, err)
	}
	return def, nil
}

// Get returns the definition with the given ID.
func (s *RouteStore) Get(id types.RouteID) (types.RouteDefinition, error) {
	return s.getOne("get-route", string(id))
}

// GetByName returns the definition with the given name.
func (s *RouteStore) GetByName(name string) (types.RouteDefinition, error) {
	return s.getOne("get-route-by-name", name)
}

func (s *RouteStore) getOne(query, arg string) (types.RouteDefinition, error) {
	var row routeRow
	err := s.q.Get(query, &row, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RouteDefinition{}, fmt.Errorf("%w: %s", types.ErrRouteNotFound, arg)
	}
	if err != nil {
		return types.RouteDefinition{}, fmt.Errorf("database error: %w", err)
	}
	return row.definition(), nil
}

// List returns every definition in registration order.
func (s *RouteStore) List() ([]types.RouteDefinition, error) {
	var rows []routeRow
	if err := s.q.Select("list-routes", &rows); err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defs := make([]types.RouteDefinition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, row.definition())
	}
	return defs, nil
}

// Delete removes the definition with the given ID.
func (s *RouteStore) Delete(id types.RouteID) error {
	res, err := s.q.Exec("delete-route", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRouteNotFound, id)
	}
	return nil
}

func joinOperations(ops []string) string {
	normalized := make([]string, len(ops))
	for i, op := range ops {
		normalized[i] = strings.ToUpper(strings.TrimSpace(op))
	}
	return strings.Join(normalized, ",")
}
