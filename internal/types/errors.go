package types

import "errors"

// Sentinel errors for streamrouter operations.
var (
	// ErrInvalidExpression is wrapped by every compile-time condition error.
	ErrInvalidExpression = errors.New("invalid condition expression")

	// ErrExpressionTooLong indicates source text exceeds MaxExpressionLength.
	ErrExpressionTooLong = errors.New("expression exceeds maximum length")

	// ErrExpressionTooDeep indicates nesting exceeds MaxExpressionDepth.
	ErrExpressionTooDeep = errors.New("expression nesting exceeds maximum depth")

	// ErrPathTooDeep indicates a path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("path exceeds maximum depth")

	// ErrTooManyInValues indicates an IN list exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("IN operator has too many values")

	// ErrTooManyKeys indicates a has_changed key list exceeds MaxHasChangedKeys.
	ErrTooManyKeys = errors.New("has_changed has too many keys")

	// ErrUnknownType indicates a type tag outside the closed set.
	ErrUnknownType = errors.New("unknown type tag")

	// ErrUnknownOperation indicates an operation name other than INSERT, UPDATE, REMOVE.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrNoOperations indicates a route registered without any operation.
	ErrNoOperations = errors.New("route has no operations")

	// ErrNoHandler indicates a route registered without a handler.
	ErrNoHandler = errors.New("route has no handler")

	// ErrUnknownHandler indicates a stored route references an unregistered handler.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrDuplicateRoute indicates a route ID or name is already registered.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrRouteNotFound indicates a route ID is not registered or stored.
	ErrRouteNotFound = errors.New("route not found")

	// ErrInvalidRecord indicates a stream record could not be decoded.
	ErrInvalidRecord = errors.New("invalid stream record")

	// ErrBatchTooLarge indicates a dispatch batch exceeds the configured maximum.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)
