// Package sources connects the router to record streams: sources feed
// decoded batches to a dispatch callback, sinks receive records forwarded by
// "forward:<sink>" routes.
package sources

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/logging"
	"github.com/solatis/streamrouter/internal/types"
)

// BatchFunc receives each decoded batch. Returning an error stops the source
// without acknowledging the batch, so it is redelivered on restart.
type BatchFunc func(ctx context.Context, recs []*types.Record) error

// Source delivers record batches until ctx ends, the input is exhausted, or
// the BatchFunc fails.
type Source interface {
	Run(ctx context.Context, fn BatchFunc) error
	Close() error
}

// New builds the source selected by cfg.Type.
func New(cfg config.SourceConfig, logger *logrus.Logger) (Source, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	entry := logger.WithField(logging.FieldSource, cfg.Type)

	var (
		src Source
		err error
	)
	switch cfg.Type {
	case config.SourceFile, "":
		src, err = NewFileSource(cfg.File.Path, DefaultFileBatchSize, entry)
	case config.SourceKafka:
		src, err = NewKafkaSource(cfg.Kafka, entry)
	case config.SourceAMQP:
		src, err = NewAMQPSource(cfg.AMQP, entry)
	case config.SourceRedis:
		src, err = NewRedisSource(cfg.Redis, entry)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// tagSource stamps records that arrived without a source name.
func tagSource(recs []*types.Record, source string) {
	for _, rec := range recs {
		if rec.Source == "" {
			rec.Source = source
		}
	}
}
