// Package api implements the gRPC router API: ad-hoc condition evaluation,
// expression checking, and batch dispatch through the live router.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/streamrouter/internal/condition"
	"github.com/solatis/streamrouter/internal/core/auth"
	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/stream"
	"github.com/solatis/streamrouter/internal/types"
)

// RouterService implements RouterServer over a router.Router.
type RouterService struct {
	router *router.Router
	cfg    config.ServerConfig
	logger *logrus.Logger
}

// NewRouterService creates the service. Expressions sent to Evaluate and
// Check are client input and are compiled without caching; only route
// conditions live in the shared expression cache.
func NewRouterService(r *router.Router, cfg config.ServerConfig, logger *logrus.Logger) (*RouterService, error) {
	if r == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RouterService{router: r, cfg: cfg, logger: logger}, nil
}

func (s *RouterService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// Evaluate compiles an expression and evaluates it against one record.
//
//	request:  {"expression": string, "record": <stream record>}
//	response: {"result": bool}
func (s *RouterService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	expr := req.GetFields()["expression"].GetStringValue()
	if expr == "" {
		return nil, status.Error(codes.InvalidArgument, "expression required")
	}
	recValue, ok := req.GetFields()["record"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "record required")
	}

	pred, err := condition.Compile(expr)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := decodeValue(recValue)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return structpb.NewStruct(map[string]any{
		"result": condition.Evaluate(pred, rec),
	})
}

// Check compiles each expression and reports whether it is valid.
//
//	request:  {"expressions": [string]}
//	response: {"results": [{"expression", "valid", "error"?, "line"?, "canonical"?}]}
func (s *RouterService) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["expressions"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "expressions required")
	}

	results := make([]any, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		results = append(results, checkResult(v.GetStringValue()))
	}
	return structpb.NewStruct(map[string]any{"results": results})
}

func checkResult(expr string) map[string]any {
	out := map[string]any{"expression": expr}
	pred, err := condition.Compile(expr)
	if err != nil {
		out["valid"] = false
		out["error"] = err.Error()
		if line := ErrorLine(err); line > 0 {
			out["line"] = line
		}
		return out
	}
	out["valid"] = true
	out["canonical"] = pred.String()
	return out
}

// ErrorLine returns the source line a compile error points at, or 0.
func ErrorLine(err error) int {
	var syn *condition.SyntaxError
	if errors.As(err, &syn) {
		return syn.Line
	}
	var lex *condition.LexicalError
	if errors.As(err, &lex) {
		return lex.Line
	}
	return 0
}

// Dispatch routes a batch of records through the registered routes.
//
//	request:  {"records": [<stream record>]}
//	response: {"matched": n, "results": [{"route_id", "route", "record_id", "value"?, "error"?}]}
func (s *RouterService) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["records"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "records required")
	}
	if s.cfg.MaxBatchSize > 0 && len(list.GetValues()) > s.cfg.MaxBatchSize {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("batch size exceeds maximum of %d records", s.cfg.MaxBatchSize))
	}

	raw, err := protojson.Marshal(structpb.NewListValue(list))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	recs, err := stream.DecodeBatch(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	results, err := s.router.ResolveAll(ctx, recs)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": auth.ClientIDFromContext(ctx),
		"records":   len(recs),
		"matched":   len(results),
		"duration":  time.Since(start),
	}).Debug("dispatched batch")

	out := make([]any, 0, len(results))
	for _, res := range results {
		out = append(out, resultFields(res))
	}
	return structpb.NewStruct(map[string]any{
		"matched": len(results),
		"results": out,
	})
}

func resultFields(res router.Result) map[string]any {
	fields := map[string]any{
		"route_id":  string(res.Route.ID),
		"route":     res.Route.Name,
		"record_id": res.Record.ID,
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	if res.Value != nil {
		fields["value"] = wireValue(res.Value)
	}
	return fields
}

// wireValue converts a handler result to something structpb accepts.
func wireValue(v any) any {
	if _, err := structpb.NewValue(v); err == nil {
		return v
	}
	return fmt.Sprint(v)
}

// ListRoutes returns the registered routes in registration order.
//
//	response: {"routes": [{"id", "name", "operations", "condition"}]}
func (s *RouterService) ListRoutes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	routes := s.router.Routes()
	out := make([]any, 0, len(routes))
	for _, r := range routes {
		ops := make([]any, 0, len(r.Operations))
		for _, op := range r.Operations {
			ops = append(ops, op.String())
		}
		route := map[string]any{
			"id":         string(r.ID),
			"name":       r.Name,
			"operations": ops,
		}
		if r.Condition != nil {
			route["condition"] = r.Condition.String()
		}
		out = append(out, route)
	}
	return structpb.NewStruct(map[string]any{"routes": out})
}

// decodeValue turns a Struct-encoded record (envelope or plain form) into a
// types.Record.
func decodeValue(v *structpb.Value) (*types.Record, error) {
	raw, err := protojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRecord, err)
	}
	return stream.DecodeRecord(raw)
}
