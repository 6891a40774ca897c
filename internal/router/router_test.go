// internal/router/router_test.go
package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/types"
)

func echo(label string) Handler {
	return HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
		return label, nil
	})
}

func newRouter(workers int) *Router {
	return New(Config{MaxWorkers: workers}, logging.Discard())
}

func TestRoute_Matches(t *testing.T) {
	r := newRouter(1)

	always, err := r.Update("", echo("always"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	withCond, err := r.Update(`$NEW.status == "open"`, echo("cond"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	withFilter, err := r.Update("", echo("filter"), func(rec *types.Record) bool {
		return rec.New["vip"] == true
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	either, err := r.Update(`$NEW.status == "open"`, echo("either"), func(rec *types.Record) bool {
		return rec.New["vip"] == true
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tests := []struct {
		name  string
		route *Route
		rec   *types.Record
		want  bool
	}{
		{"no condition no filter", always, types.NewRecord(types.OperationUpdate, nil, nil), true},
		{"wrong operation", always, types.NewRecord(types.OperationInsert, nil, nil), false},
		{"condition true", withCond, types.NewRecord(types.OperationUpdate, nil, types.Image{"status": "open"}), true},
		{"condition false", withCond, types.NewRecord(types.OperationUpdate, nil, types.Image{"status": "closed"}), false},
		{"filter true", withFilter, types.NewRecord(types.OperationUpdate, nil, types.Image{"vip": true}), true},
		{"filter false", withFilter, types.NewRecord(types.OperationUpdate, nil, nil), false},
		{"condition or filter: filter", either, types.NewRecord(types.OperationUpdate, nil, types.Image{"vip": true}), true},
		{"condition or filter: condition", either, types.NewRecord(types.OperationUpdate, nil, types.Image{"status": "open"}), true},
		{"condition or filter: neither", either, types.NewRecord(types.OperationUpdate, nil, types.Image{"status": "x"}), false},
		{"nil record", always, nil, false},
		{"nil record with filter", withFilter, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.route.Matches(tt.rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegister_Errors(t *testing.T) {
	r := newRouter(1)

	tests := []struct {
		name    string
		spec    RouteSpec
		wantErr error
	}{
		{"no operations", RouteSpec{Handler: echo("x")}, types.ErrNoOperations},
		{"no handler", RouteSpec{Operations: []types.Operation{types.OperationInsert}}, types.ErrNoHandler},
		{"unknown operation", RouteSpec{Operations: []types.Operation{types.OperationUnknown}, Handler: echo("x")}, types.ErrUnknownOperation},
		{"bad condition", RouteSpec{Operations: []types.Operation{types.OperationInsert}, Condition: `$NEW.a ==`, Handler: echo("x")}, types.ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.spec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := len(r.Routes()); n != 0 {
		t.Errorf("len(Routes()) = %d after failed registrations, want 0", n)
	}
}

func TestRegister_DuplicateID(t *testing.T) {
	r := newRouter(1)
	id := types.NewRouteID()
	spec := RouteSpec{ID: id, Operations: []types.Operation{types.OperationInsert}, Handler: echo("x")}

	if _, err := r.Register(spec); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := r.Register(spec); !errors.Is(err, types.ErrDuplicateRoute) {
		t.Errorf("Register(duplicate) error = %v, want ErrDuplicateRoute", err)
	}
}

func TestUnregister(t *testing.T) {
	r := newRouter(1)
	a, _ := r.Insert("", echo("a"))
	b, _ := r.Insert("", echo("b"))

	if err := r.Unregister(a.ID); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	routes := r.Routes()
	if len(routes) != 1 || routes[0].ID != b.ID {
		t.Errorf("Routes() = %v, want only b", routes)
	}
	if err := r.Unregister(a.ID); !errors.Is(err, types.ErrRouteNotFound) {
		t.Errorf("Unregister(again) error = %v, want ErrRouteNotFound", err)
	}
}

func TestResolveRecord_OrderAndErrors(t *testing.T) {
	r := newRouter(1)
	boom := errors.New("boom")

	r.Insert("", echo("first"))
	r.Remove("", echo("other-op"))
	r.Insert("", HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
		return nil, boom
	}))
	r.Register(RouteSpec{
		Operations: []types.Operation{types.OperationInsert, types.OperationUpdate},
		Condition:  `attribute_exists($NEW.id)`,
		Handler:    echo("last"),
	})

	rec := types.NewRecord(types.OperationInsert, nil, types.Image{"id": "1"})
	results, err := r.ResolveRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("ResolveRecord() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Value != "first" || results[0].Err != nil {
		t.Errorf("results[0] = %+v, want first", results[0])
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("results[1].Err = %v, want boom", results[1].Err)
	}
	if results[2].Value != "last" {
		t.Errorf("results[2].Value = %v, want last", results[2].Value)
	}
	for i, res := range results {
		if res.Record != rec {
			t.Errorf("results[%d].Record is not the input record", i)
		}
	}
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := newRouter(workers)
			r.Insert("", HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
				return rec.ID + "/a", nil
			}))
			r.Insert(`$NEW.n > 5`, HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
				return rec.ID + "/b", nil
			}))

			var recs []*types.Record
			var want []string
			for i := 0; i < 10; i++ {
				rec := types.NewRecord(types.OperationInsert, nil, types.Image{"n": float64(i)})
				rec.ID = fmt.Sprintf("r%d", i)
				recs = append(recs, rec)
				want = append(want, rec.ID+"/a")
				if i > 5 {
					want = append(want, rec.ID+"/b")
				}
			}

			results, err := r.ResolveAll(context.Background(), recs)
			if err != nil {
				t.Fatalf("ResolveAll() error = %v", err)
			}
			if len(results) != len(want) {
				t.Fatalf("len(results) = %d, want %d", len(results), len(want))
			}
			for i, res := range results {
				if res.Value != want[i] {
					t.Errorf("results[%d].Value = %v, want %s", i, res.Value, want[i])
				}
			}
		})
	}
}

func TestResolveAll_Concurrent(t *testing.T) {
	r := newRouter(8)
	var calls atomic.Int64
	r.Update(`has_changed("v")`, HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
		calls.Add(1)
		return nil, nil
	}))

	recs := make([]*types.Record, 200)
	for i := range recs {
		recs[i] = types.NewRecord(types.OperationUpdate, types.Image{"v": float64(i % 2)}, types.Image{"v": float64(0)})
	}
	results, err := r.ResolveAll(context.Background(), recs)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if len(results) != 100 || calls.Load() != 100 {
		t.Errorf("results = %d, calls = %d, want 100 each", len(results), calls.Load())
	}
}

func TestResolveAll_SkipsNilRecords(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := newRouter(workers)
			r.Insert("", HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
				return rec.ID, nil
			}))

			first := types.NewRecord(types.OperationInsert, nil, nil)
			first.ID = "first"
			last := types.NewRecord(types.OperationInsert, nil, nil)
			last.ID = "last"

			results, err := r.ResolveAll(context.Background(), []*types.Record{nil, first, nil, last, nil})
			if err != nil {
				t.Fatalf("ResolveAll() error = %v", err)
			}
			if len(results) != 2 || results[0].Value != "first" || results[1].Value != "last" {
				t.Errorf("ResolveAll() = %+v, want results for first and last", results)
			}

			if got := r.Match(nil); len(got) != 0 {
				t.Errorf("Match(nil) = %d routes, want 0", len(got))
			}
			if res, err := r.ResolveRecord(context.Background(), nil); err != nil || len(res) != 0 {
				t.Errorf("ResolveRecord(nil) = (%v, %v), want no results", res, err)
			}
		})
	}
}

func TestResolveAll_Cancelled(t *testing.T) {
	r := newRouter(1)
	r.Insert("", echo("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs := []*types.Record{
		types.NewRecord(types.OperationInsert, nil, nil),
		types.NewRecord(types.OperationInsert, nil, nil),
	}
	results, err := r.ResolveAll(ctx, recs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ResolveAll() error = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestReplace_AllOrNothing(t *testing.T) {
	r := newRouter(1)
	keep, _ := r.Insert("", echo("keep"))

	err := r.Replace([]RouteSpec{
		{Operations: []types.Operation{types.OperationInsert}, Handler: echo("a")},
		{Operations: []types.Operation{types.OperationInsert}, Condition: `(`, Handler: echo("b")},
	})
	if !errors.Is(err, types.ErrInvalidExpression) {
		t.Fatalf("Replace() error = %v, want ErrInvalidExpression", err)
	}
	if routes := r.Routes(); len(routes) != 1 || routes[0].ID != keep.ID {
		t.Errorf("Routes() changed after failed Replace")
	}

	if err := r.Replace([]RouteSpec{
		{Operations: []types.Operation{types.OperationRemove}, Handler: echo("a")},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if routes := r.Routes(); len(routes) != 1 || routes[0].ID == keep.ID {
		t.Errorf("Routes() not replaced")
	}
}

func TestMatch(t *testing.T) {
	r := newRouter(1)
	a, _ := r.Insert(`$NEW.a == 1`, echo("a"))
	r.Insert(`$NEW.a == 2`, echo("b"))

	matched := r.Match(types.NewRecord(types.OperationInsert, nil, types.Image{"a": float64(1)}))
	if len(matched) != 1 || matched[0].ID != a.ID {
		t.Errorf("Match() = %v, want route a", matched)
	}
}
