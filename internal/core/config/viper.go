package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration with viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned Config.
type Loader struct {
	v *viper.Viper
}

// NewLoader sets defaults, binds SR_ environment variables and reads the
// config file when configPath is not empty.
func NewLoader(configPath string) (*Loader, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.max_batch_size", def.Server.MaxBatchSize)
	v.SetDefault("router.max_workers", def.Router.MaxWorkers)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("database.url", "")
	v.SetDefault("routes_file", "")
	v.SetDefault("source.type", def.Source.Type)
	v.SetDefault("source.file.path", def.Source.File.Path)

	v.SetEnvPrefix("SR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	return &Loader{v: v}, nil
}

// LoadConfig is NewLoader followed by Config.
func LoadConfig(configPath string) (*Config, error) {
	l, err := NewLoader(configPath)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

// Config decodes and validates the current settings.
func (l *Loader) Config() (*Config, error) {
	v := l.v
	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBatchSize:   v.GetInt("server.max_batch_size"),
		},
		Router: RouterConfig{
			MaxWorkers: v.GetInt("router.max_workers"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		DatabaseURL: v.GetString("database.url"),
		RoutesFile:  v.GetString("routes_file"),
	}

	cfg.Source = SourceConfig{
		Type: v.GetString("source.type"),
		File: FileSource{Path: v.GetString("source.file.path")},
		Kafka: KafkaSource{
			Brokers: v.GetStringSlice("source.kafka.brokers"),
			Topic:   v.GetString("source.kafka.topic"),
			GroupID: v.GetString("source.kafka.group_id"),
		},
		AMQP: AMQPSource{
			URL:      v.GetString("source.amqp.url"),
			Queue:    v.GetString("source.amqp.queue"),
			Prefetch: v.GetInt("source.amqp.prefetch"),
		},
		Redis: RedisSource{
			Addr:     v.GetString("source.redis.addr"),
			Stream:   v.GetString("source.redis.stream"),
			Group:    v.GetString("source.redis.group"),
			Consumer: v.GetString("source.redis.consumer"),
		},
	}
	if err := v.UnmarshalKey("sinks", &cfg.Sinks); err != nil {
		return nil, fmt.Errorf("failed to decode sinks: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-decodes the config file whenever it changes on disk and passes
// the result to onChange. Decoding errors are passed through so the caller
// can keep the previous config.
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(l.Config())
	})
	l.v.WatchConfig()
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.Server.MaxBatchSize)
	}
	if cfg.Router.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", cfg.Router.MaxWorkers)
	}
	switch cfg.Source.Type {
	case SourceFile, SourceKafka, SourceAMQP, SourceRedis:
	default:
		return fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
	for name, sink := range cfg.Sinks {
		switch sink.Type {
		case SourceKafka, SourceAMQP, SourceRedis:
		default:
			return fmt.Errorf("sink %q: unknown type %q", name, sink.Type)
		}
	}
	return nil
}

func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use SR_HMAC_SECRET environment variable)")
	}
	return nil
}
