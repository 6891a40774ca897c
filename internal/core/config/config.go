// Package config provides configuration management for streamrouter services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig
	Router      RouterConfig
	Log         LogConfig
	DatabaseURL string
	RoutesFile  string
	Source      SourceConfig
	Sinks       map[string]SinkConfig
}

// ServerConfig holds configuration for the gRPC router API.
type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int
}

// RouterConfig controls record dispatch.
type RouterConfig struct {
	MaxWorkers int
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// Source types.
const (
	SourceFile  = "file"
	SourceKafka = "kafka"
	SourceAMQP  = "amqp"
	SourceRedis = "redis"
)

// SourceConfig describes where `run` reads records from. Only the block
// matching Type is used.
type SourceConfig struct {
	Type  string
	File  FileSource
	Kafka KafkaSource
	AMQP  AMQPSource
	Redis RedisSource
}

// FileSource reads newline-delimited JSON. Path "-" is stdin.
type FileSource struct {
	Path string
}

// KafkaSource consumes a topic as part of a consumer group.
type KafkaSource struct {
	Brokers []string
	Topic   string
	GroupID string
}

// AMQPSource consumes a queue.
type AMQPSource struct {
	URL      string
	Queue    string
	Prefetch int
}

// RedisSource consumes a stream as part of a consumer group.
type RedisSource struct {
	Addr     string
	Stream   string
	Group    string
	Consumer string
}

// SinkConfig describes a named forward target used by "forward:<name>"
// handlers.
type SinkConfig struct {
	Type       string   `mapstructure:"type"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	URL        string   `mapstructure:"url"`
	Exchange   string   `mapstructure:"exchange"`
	RoutingKey string   `mapstructure:"routing_key"`
	Addr       string   `mapstructure:"addr"`
	Stream     string   `mapstructure:"stream"`
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MaxBatchSize:   1000,
		},
		Router: RouterConfig{MaxWorkers: 4},
		Log:    LogConfig{Level: "info", Format: "json"},
		Source: SourceConfig{Type: SourceFile, File: FileSource{Path: "-"}},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports SR_HMAC_SECRET (single) and SR_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' in %s (check SR_HMAC_SECRET and SR_HMAC_SECRET_* for conflicts)", secretID, key)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("SR_HMAC_SECRET"); val != "" {
		if err := add("SR_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation.
	for i := 1; ; i++ {
		key := fmt.Sprintf("SR_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
