package config

import "testing"

// TestSecretsAndPrecedence covers the rules operators rely on: secrets come
// only from the environment, and the environment overrides the config file.
func TestSecretsAndPrecedence(t *testing.T) {
	t.Run("SR_HMAC_SECRET accessible via HMACSecrets", func(t *testing.T) {
		t.Setenv("SR_HMAC_SECRET", "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets error: %v", err)
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Fatal("secret not accessible")
		}
	})

	t.Run("environment secret does not trip the config-file check", func(t *testing.T) {
		t.Setenv("SR_HMAC_SECRET", "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		if _, err := LoadConfig(""); err != nil {
			t.Fatalf("LoadConfig error with env secret: %v", err)
		}
	})

	t.Run("config file with hmac_secret rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `server:
  host: "localhost"
  port: 8080
  hmac_secret: "should_be_rejected"
`)

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use SR_HMAC_SECRET environment variable)" {
			t.Fatalf("wrong error message: %v", err)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("SR_SERVER_PORT", "8080")

		path := writeConfig(t, `server:
  port: 9090
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Fatalf("environment should override config file: expected 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/streamrouter.yaml"); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}
