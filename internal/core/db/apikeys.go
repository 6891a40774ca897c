package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey is a stored key without its hash.
type APIKey struct {
	APIKeyID   string       `db:"api_key_id"`
	ClientID   string       `db:"client_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// APIKeyStore manages the api_keys table. Plaintext keys never reach it;
// callers pass the HMAC computed by the auth package.
type APIKeyStore struct {
	q *Queries
}

// NewAPIKeyStore wraps loaded queries.
func NewAPIKeyStore(q *Queries) *APIKeyStore {
	return &APIKeyStore{q: q}
}

// Create records a key hash for clientID and returns the new key's ID.
func (s *APIKeyStore) Create(clientID, name, secretID string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := s.q.Exec("insert-api-key", id, clientID, name, secretID, keyHash, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert API key: %w", err)
	}
	return id, nil
}

// Revoke marks a key revoked. Revoking an unknown or already revoked key
// returns sql.ErrNoRows.
func (s *APIKeyStore) Revoke(apiKeyID string) error {
	res, err := s.q.Exec("revoke-api-key", time.Now().UTC(), apiKeyID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns all keys, oldest first.
func (s *APIKeyStore) List() ([]APIKey, error) {
	var keys []APIKey
	if err := s.q.Select("list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}
