package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/types"
)

// Handler is called for every record a route matches. The returned value is
// carried back to the caller in Result.Value.
type Handler interface {
	Handle(ctx context.Context, rec *types.Record) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rec *types.Record) (any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rec *types.Record) (any, error) {
	return f(ctx, rec)
}

// Handler names understood by the registry.
const (
	HandlerLog    = "log"
	ForwardPrefix = "forward:"
)

// Registry resolves handler names stored with route definitions to handler
// implementations.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry holding the log handler.
func NewRegistry(logger *logrus.Logger) *Registry {
	reg := &Registry{handlers: make(map[string]Handler)}
	reg.handlers[HandlerLog] = NewLogHandler(logger)
	return reg
}

// Register adds or replaces a named handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterForward registers h as the handler for "forward:<sink>".
func (r *Registry) RegisterForward(sink string, h Handler) {
	r.Register(ForwardPrefix+sink, h)
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, error) {
	if name == "" {
		return nil, types.ErrNoHandler
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		if strings.HasPrefix(name, ForwardPrefix) {
			return nil, fmt.Errorf("%w: %s (sink %q not configured)", types.ErrUnknownHandler, name, strings.TrimPrefix(name, ForwardPrefix))
		}
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownHandler, name)
	}
	return h, nil
}

// Names lists registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLogHandler returns a handler that logs each record it receives and
// returns the record ID as its value.
func NewLogHandler(logger *logrus.Logger) Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
		logger.WithFields(logrus.Fields{
			logging.FieldRecordID:  rec.ID,
			logging.FieldOperation: rec.Operation.String(),
			logging.FieldSource:    rec.Source,
			"old":                  rec.Old,
			"new":                  rec.New,
		}).Info("record routed")
		return rec.ID, nil
	})
}
