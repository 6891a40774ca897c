package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/stream"
	"github.com/solatis/streamrouter/internal/types"
)

// Sink types accepted in the sinks configuration block.
const (
	SinkKafka = "kafka"
	SinkAMQP  = "amqp"
	SinkRedis = "redis"
)

// Sink publishes encoded records. key is the record ID.
type Sink interface {
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

// NewSink builds a sink from its configuration.
func NewSink(name string, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case SinkKafka:
		if len(cfg.Brokers) == 0 || cfg.Topic == "" {
			return nil, fmt.Errorf("sink %s: kafka needs brokers and topic", name)
		}
		return &KafkaSink{writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}}, nil
	case SinkAMQP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("sink %s: amqp needs url", name)
		}
		return NewAMQPSink(cfg.URL, cfg.Exchange, cfg.RoutingKey)
	case SinkRedis:
		if cfg.Addr == "" || cfg.Stream == "" {
			return nil, fmt.Errorf("sink %s: redis needs addr and stream", name)
		}
		return &RedisSink{client: redis.NewClient(&redis.Options{Addr: cfg.Addr}), stream: cfg.Stream}, nil
	default:
		return nil, fmt.Errorf("sink %s: unknown type %q", name, cfg.Type)
	}
}

// KafkaSink writes to a topic, keyed by record ID so updates to one item
// stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func (s *KafkaSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// AMQPSink publishes persistent messages to an exchange.
type AMQPSink struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink connects eagerly so misconfiguration surfaces at startup.
func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (s *AMQPSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (s *AMQPSink) Close() error {
	s.channel.Close()
	return s.conn.Close()
}

// RedisSink appends entries to a stream under RecordField, the layout
// RedisSource reads.
type RedisSink struct {
	client *redis.Client
	stream string
}

func (s *RedisSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			RecordField: string(payload),
			"id":        key,
		},
	}).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

// BreakerSettings returns the circuit breaker used for a sink: it opens
// after 5 consecutive failures, or when at least 60% of 10+ calls in the
// last minute failed, and probes again after 30 seconds.
func BreakerSettings(name string, logger *logrus.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				logging.FieldSink: name,
				"from":            from.String(),
				"to":              to.String(),
			}).Warn("sink circuit breaker changed state")
		},
	}
}

// NewForwardHandler returns a route handler that encodes the record in the
// stream envelope format and sends it through sink behind a circuit breaker.
// While the breaker is open, calls fail fast with gobreaker.ErrOpenState.
func NewForwardHandler(name string, sink Sink, settings gobreaker.Settings) router.Handler {
	cb := gobreaker.NewCircuitBreaker(settings)
	return router.HandlerFunc(func(ctx context.Context, rec *types.Record) (any, error) {
		payload, err := stream.EncodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record for %s: %w", name, err)
		}
		_, err = cb.Execute(func() (interface{}, error) {
			return nil, sink.Send(ctx, rec.ID, payload)
		})
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", name, err)
		}
		return name, nil
	})
}

// Sinks holds the configured sinks for closing on shutdown.
type Sinks map[string]Sink

// OpenSinks builds every configured sink and registers a forward handler
// for each. On error, sinks opened so far are closed.
func OpenSinks(cfgs map[string]config.SinkConfig, reg *router.Registry, logger *logrus.Logger) (Sinks, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	sinks := make(Sinks, len(cfgs))
	for _, name := range names {
		sink, err := NewSink(name, cfgs[name])
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks[name] = sink
		reg.RegisterForward(name, NewForwardHandler(name, sink, BreakerSettings(name, logger)))
		logger.WithFields(logrus.Fields{
			logging.FieldSink: name,
			"type":            cfgs[name].Type,
		}).Info("sink registered")
	}
	return sinks, nil
}

// Close closes every sink, returning the first error.
func (s Sinks) Close() error {
	var first error
	for name, sink := range s {
		if err := sink.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing sink %s: %w", name, err)
		}
	}
	return first
}
