package sources

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/stream"
)

// AMQPSource consumes a queue with manual acknowledgement.
type AMQPSource struct {
	cfg     config.AMQPSource
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logrus.Entry
}

// NewAMQPSource validates cfg. The connection is opened by Run.
func NewAMQPSource(cfg config.AMQPSource, logger *logrus.Entry) (*AMQPSource, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, fmt.Errorf("amqp source needs url and queue")
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 10
	}
	return &AMQPSource{cfg: cfg, logger: logger}, nil
}

// Run consumes until ctx ends or the broker closes the channel. A delivery
// is acked after dispatch, rejected without requeue when it does not decode,
// and requeued when dispatch fails.
func (s *AMQPSource) Run(ctx context.Context, fn BatchFunc) error {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	s.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	s.channel = ch

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(s.cfg.Queue, "streamrouter", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", s.cfg.Queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("AMQP channel closed")
			}
			if err := s.handle(ctx, d, fn); err != nil {
				return err
			}
		}
	}
}

func (s *AMQPSource) handle(ctx context.Context, d amqp.Delivery, fn BatchFunc) error {
	recs, err := stream.DecodeBatch(d.Body)
	if err != nil {
		s.logger.WithError(err).WithField("delivery_tag", d.DeliveryTag).Warn("rejecting undecodable message")
		return d.Nack(false, false)
	}
	tagSource(recs, "amqp:"+s.cfg.Queue)
	if err := fn(ctx, recs); err != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			s.logger.WithError(nackErr).Warn("failed to requeue message")
		}
		return err
	}
	return d.Ack(false)
}

// Close closes the channel and connection.
func (s *AMQPSource) Close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
