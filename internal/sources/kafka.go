package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/stream"
)

// KafkaSource consumes a topic in a consumer group. Each message holds one
// record or a batch; offsets are committed only after the batch dispatched.
type KafkaSource struct {
	reader *kafka.Reader
	topic  string
	logger *logrus.Entry
}

// NewKafkaSource creates the group reader. No connection is made until Run.
func NewKafkaSource(cfg config.KafkaSource, logger *logrus.Entry) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source needs brokers and topic")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "streamrouter"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &KafkaSource{reader: reader, topic: cfg.Topic, logger: logger}, nil
}

// Run fetches, dispatches, and commits one message at a time. Undecodable
// messages are logged and committed so they do not block the partition.
func (s *KafkaSource) Run(ctx context.Context, fn BatchFunc) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka fetch failed: %w", err)
		}

		recs, err := stream.DecodeBatch(msg.Value)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("skipping undecodable message")
		} else {
			tagSource(recs, "kafka:"+s.topic)
			if err := fn(ctx, recs); err != nil {
				return err
			}
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit failed: %w", err)
		}
	}
}

// Close leaves the consumer group.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
