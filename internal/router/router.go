// Package router dispatches change records to the handlers of matching routes.
//
// A route names the operations it cares about, an optional condition
// expression, optional filter functions, and a handler. For each record the
// router selects routes whose operation set contains the record's operation,
// then keeps those with no condition and no filters, or whose condition holds,
// or for which any filter returns true. Matching handlers run in registration
// order and their results are collected in record order, then route order.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/solatis/streamrouter/internal/condition"
	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/types"
)

// Filter is a predicate over a record supplied in code rather than as an
// expression.
type Filter func(rec *types.Record) bool

// RouteSpec describes a route to register.
type RouteSpec struct {
	// ID is generated when empty.
	ID         types.RouteID
	Name       string
	Operations []types.Operation
	Condition  string
	Filters    []Filter
	Handler    Handler
}

// Route is a registered route. Routes are immutable once registered.
type Route struct {
	ID         types.RouteID
	Name       string
	Operations []types.Operation
	Condition  *condition.Predicate
	Filters    []Filter
	Handler    Handler
}

// HandlesOperation reports whether op is in the route's operation set.
func (r *Route) HandlesOperation(op types.Operation) bool {
	for _, o := range r.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Matches reports whether the route should be called for rec. A nil record
// matches nothing.
func (r *Route) Matches(rec *types.Record) bool {
	if rec == nil || !r.HandlesOperation(rec.Operation) {
		return false
	}
	if r.Condition == nil && len(r.Filters) == 0 {
		return true
	}
	if r.Condition != nil && condition.Evaluate(r.Condition, rec) {
		return true
	}
	for _, f := range r.Filters {
		if f(rec) {
			return true
		}
	}
	return false
}

// Result is the outcome of calling one route's handler on one record.
type Result struct {
	Route  *Route
	Record *types.Record
	Value  any
	Err    error
}

// Config controls dispatch.
type Config struct {
	// MaxWorkers bounds how many records ResolveAll processes concurrently.
	// Values below 2 process records sequentially.
	MaxWorkers int
}

// Router holds the registered routes. Safe for concurrent use: registration
// takes a write lock, resolution works on a snapshot of the route list.
type Router struct {
	mu     sync.RWMutex
	routes []*Route

	cache  *condition.Cache
	cfg    Config
	logger *logrus.Logger
}

// New creates an empty router. Conditions are compiled through the
// process-wide expression cache.
func New(cfg Config, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{
		cache:  condition.DefaultCache(),
		cfg:    cfg,
		logger: logger,
	}
}

// Register compiles the route's condition and adds it after all existing
// routes. A malformed condition fails here, not at dispatch.
func (r *Router) Register(spec RouteSpec) (*Route, error) {
	route, err := r.build(spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes {
		if existing.ID == route.ID {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateRoute, route.ID)
		}
	}
	r.routes = append(r.routes, route)

	r.logger.WithFields(logrus.Fields{
		logging.FieldRouteID: route.ID,
		"name":               route.Name,
		"operations":         route.Operations,
	}).Debug("route registered")
	return route, nil
}

func (r *Router) build(spec RouteSpec) (*Route, error) {
	if len(spec.Operations) == 0 {
		return nil, types.ErrNoOperations
	}
	seen := make(map[types.Operation]bool, len(spec.Operations))
	for _, op := range spec.Operations {
		if op < types.OperationInsert || op > types.OperationRemove {
			return nil, fmt.Errorf("%w: %d", types.ErrUnknownOperation, op)
		}
		if seen[op] {
			return nil, fmt.Errorf("duplicate operation %s", op)
		}
		seen[op] = true
	}
	if spec.Handler == nil {
		return nil, types.ErrNoHandler
	}

	route := &Route{
		ID:         spec.ID,
		Name:       spec.Name,
		Operations: append([]types.Operation(nil), spec.Operations...),
		Filters:    append([]Filter(nil), spec.Filters...),
		Handler:    spec.Handler,
	}
	if route.ID == "" {
		route.ID = types.NewRouteID()
	}
	if spec.Condition != "" {
		pred, err := r.cache.Get(spec.Condition)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", spec.Name, err)
		}
		route.Condition = pred
	}
	return route, nil
}

// Insert registers a route for INSERT records.
func (r *Router) Insert(cond string, h Handler, filters ...Filter) (*Route, error) {
	return r.Register(RouteSpec{Operations: []types.Operation{types.OperationInsert}, Condition: cond, Filters: filters, Handler: h})
}

// Update registers a route for UPDATE records.
func (r *Router) Update(cond string, h Handler, filters ...Filter) (*Route, error) {
	return r.Register(RouteSpec{Operations: []types.Operation{types.OperationUpdate}, Condition: cond, Filters: filters, Handler: h})
}

// Remove registers a route for REMOVE records.
func (r *Router) Remove(cond string, h Handler, filters ...Filter) (*Route, error) {
	return r.Register(RouteSpec{Operations: []types.Operation{types.OperationRemove}, Condition: cond, Filters: filters, Handler: h})
}

// Unregister removes the route with the given ID.
func (r *Router) Unregister(id types.RouteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, route := range r.routes {
		if route.ID == id {
			r.routes = append(r.routes[:i:i], r.routes[i+1:]...)
			r.logger.WithField(logging.FieldRouteID, id).Debug("route unregistered")
			return nil
		}
	}
	return fmt.Errorf("%w: %s", types.ErrRouteNotFound, id)
}

// Replace swaps the whole route set in one step, compiling every spec first.
// On error the current routes are left untouched.
func (r *Router) Replace(specs []RouteSpec) error {
	routes := make([]*Route, 0, len(specs))
	ids := make(map[types.RouteID]bool, len(specs))
	for _, spec := range specs {
		route, err := r.build(spec)
		if err != nil {
			return err
		}
		if ids[route.ID] {
			return fmt.Errorf("%w: %s", types.ErrDuplicateRoute, route.ID)
		}
		ids[route.ID] = true
		routes = append(routes, route)
	}

	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()

	r.logger.WithField("routes", len(routes)).Info("route set replaced")
	return nil
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Route(nil), r.routes...)
}

// Match returns the routes that would be called for rec, without calling them.
func (r *Router) Match(rec *types.Record) []*Route {
	var matched []*Route
	for _, route := range r.Routes() {
		if route.Matches(rec) {
			matched = append(matched, route)
		}
	}
	return matched
}

// ResolveRecord calls the handler of every route matching rec. Handler
// errors are reported in the corresponding Result; the returned error is
// only set when ctx ends before all handlers ran.
func (r *Router) ResolveRecord(ctx context.Context, rec *types.Record) ([]Result, error) {
	return r.resolve(ctx, r.Routes(), rec)
}

func (r *Router) resolve(ctx context.Context, routes []*Route, rec *types.Record) ([]Result, error) {
	var results []Result
	for _, route := range routes {
		if !route.Matches(rec) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		value, err := route.Handler.Handle(ctx, rec)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				logging.FieldRouteID:   route.ID,
				logging.FieldRecordID:  rec.ID,
				logging.FieldOperation: rec.Operation,
			}).WithError(err).Warn("route handler failed")
		}
		results = append(results, Result{Route: route, Record: rec, Value: value, Err: err})
	}
	return results, nil
}

// ResolveAll resolves a batch. Records are processed concurrently up to
// Config.MaxWorkers; results are returned in record order, then route order,
// regardless of completion order. All records see the same route snapshot.
// Nil entries are skipped and produce no results.
func (r *Router) ResolveAll(ctx context.Context, recs []*types.Record) ([]Result, error) {
	routes := r.Routes()
	perRecord := make([][]Result, len(recs))

	if r.cfg.MaxWorkers < 2 || len(recs) < 2 {
		for i, rec := range recs {
			res, err := r.resolve(ctx, routes, rec)
			perRecord[i] = res
			if err != nil {
				return flattenResults(perRecord), err
			}
		}
		return flattenResults(perRecord), nil
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.cfg.MaxWorkers)
	for i, rec := range recs {
		p.Go(func(ctx context.Context) error {
			res, err := r.resolve(ctx, routes, rec)
			perRecord[i] = res
			return err
		})
	}
	err := p.Wait()
	return flattenResults(perRecord), err
}

func flattenResults(perRecord [][]Result) []Result {
	n := 0
	for _, res := range perRecord {
		n += len(res)
	}
	out := make([]Result, 0, n)
	for _, res := range perRecord {
		out = append(out, res...)
	}
	return out
}
