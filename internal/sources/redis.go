package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/stream"
	"github.com/solatis/streamrouter/internal/types"
)

// RecordField is the stream entry field holding the record JSON, for both
// the Redis source and sink.
const RecordField = "record"

const (
	redisReadCount = 100
	redisBlock     = 2 * time.Second
)

// streamClient is the part of *redis.Client the source uses.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

// RedisSource consumes a Redis stream in a consumer group.
type RedisSource struct {
	client   streamClient
	cfg      config.RedisSource
	logger   *logrus.Entry
	retryGap time.Duration
}

// NewRedisSource creates the client. The group is created by Run.
func NewRedisSource(cfg config.RedisSource, logger *logrus.Entry) (*RedisSource, error) {
	if cfg.Addr == "" || cfg.Stream == "" {
		return nil, fmt.Errorf("redis source needs addr and stream")
	}
	if cfg.Group == "" {
		cfg.Group = "streamrouter"
	}
	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = "streamrouter-" + host
	}
	return &RedisSource{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		cfg:      cfg,
		logger:   logger,
		retryGap: time.Second,
	}, nil
}

// Run first re-reads entries this consumer received but never acknowledged,
// then reads new entries for the group. Each read is dispatched as one batch
// and acknowledged afterwards.
func (s *RedisSource) Run(ctx context.Context, fn BatchFunc) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	// "0" reads this consumer's pending list, ">" reads undelivered entries.
	start := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}
		args := &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, start},
			Count:    redisReadCount,
			Block:    redisBlock,
		}
		if start != ">" {
			args.Block = -1
		}
		streams, err := s.client.XReadGroup(ctx, args).Result()
		if errors.Is(err, redis.Nil) {
			start = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Warn("stream read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.retryGap):
			}
			continue
		}

		n := 0
		for _, xs := range streams {
			n += len(xs.Messages)
			if err := s.dispatch(ctx, xs.Messages, fn); err != nil {
				return err
			}
		}
		if n == 0 && start != ">" {
			s.logger.Debug("pending entries drained")
			start = ">"
		}
	}
}

func (s *RedisSource) dispatch(ctx context.Context, msgs []redis.XMessage, fn BatchFunc) error {
	recs := decodeMessages(msgs, s.logger)
	if len(recs) > 0 {
		tagSource(recs, "redis:"+s.cfg.Stream)
		if err := fn(ctx, recs); err != nil {
			return err
		}
	}
	// Undecodable entries are acknowledged with the rest so they leave the
	// pending list.
	all := make([]string, 0, len(msgs))
	for _, m := range msgs {
		all = append(all, m.ID)
	}
	if len(all) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, all...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d entries: %w", len(all), err)
	}
	return nil
}

// decodeMessages decodes the RecordField of each entry. The entry ID becomes
// the sequence number of records that carry none.
func decodeMessages(msgs []redis.XMessage, logger *logrus.Entry) []*types.Record {
	recs := make([]*types.Record, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[RecordField].(string)
		if !ok {
			logger.WithField("entry_id", m.ID).Warnf("entry has no %q field", RecordField)
			continue
		}
		rec, err := stream.DecodeRecord([]byte(raw))
		if err != nil {
			logger.WithError(err).WithField("entry_id", m.ID).Warn("skipping undecodable entry")
			continue
		}
		if rec.SequenceNumber == "" {
			rec.SequenceNumber = m.ID
		}
		recs = append(recs, rec)
	}
	return recs
}

// Close closes the client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
