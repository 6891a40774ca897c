// Package auth authenticates router API clients with HMAC-hashed API keys.
//
// A key is `sr-v1-<secret_id>-<random>`. The secret_id selects one of the
// HMAC secrets configured through SR_HMAC_SECRET*; the database stores only
// HMAC(secret, key). Rotating secrets therefore never requires rehashing:
// old keys keep verifying against their own secret until it is removed.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/streamrouter/internal/core/logging"
)

// MetadataKey is the gRPC metadata entry carrying the API key.
const MetadataKey = "x-api-key"

type contextKey string

const clientIDKey = contextKey("client_id")

// lastUsedInterval throttles last_used_at writes for busy clients.
const lastUsedInterval = time.Minute

// Queries is the subset of *db.Queries the authenticator needs.
type Queries interface {
	Get(name string, dest interface{}, args ...interface{}) error
	Exec(name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys against stored hashes.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  *logrus.Logger
}

// NewAuthenticator creates an authenticator over secret_id -> secret.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger *logrus.Logger) *Authenticator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		logger:  logger,
	}
}

// Authenticate validates apiKey and returns the owning client ID.
func (a *Authenticator) Authenticate(apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		ClientID   string       `db:"client_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.Get("get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	if !row.LastUsedAt.Valid || time.Since(row.LastUsedAt.Time) > lastUsedInterval {
		if _, err := a.queries.Exec("update-last-used", time.Now().UTC(), row.APIKeyID); err != nil {
			a.logger.WithError(err).WithField("api_key_id", row.APIKeyID).Warn("failed to update last_used_at")
		}
	}

	return row.ClientID, nil
}

// UnaryInterceptor authenticates every unary call except the health service.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		clientID, err := a.Authenticate(keys[0])
		if err != nil {
			return nil, status.Error(statusCode(err), err.Error())
		}

		return handler(WithClientID(ctx, clientID), req)
	}
}

// statusCode maps authentication failures to gRPC codes. Revocation is
// reported distinctly because it confirms the key exists.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, ErrUnavailable):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}

func isHealthMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

// WithClientID attaches an authenticated client ID to ctx.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext returns the authenticated client ID, or "".
func ClientIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey).(string); ok {
		return id
	}
	return ""
}
