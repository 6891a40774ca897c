package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/solatis/streamrouter/internal/stream"
	"github.com/solatis/streamrouter/internal/types"
)

// DefaultFileBatchSize is the number of lines dispatched together.
const DefaultFileBatchSize = 100

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 4 << 20

// FileSource reads newline-delimited JSON records, one record (envelope or
// plain form) per line. Blank lines are skipped.
type FileSource struct {
	name      string
	r         io.Reader
	closer    io.Closer
	batchSize int
	logger    *logrus.Entry
}

// NewFileSource opens path, or stdin when path is "-" or empty.
func NewFileSource(path string, batchSize int, logger *logrus.Entry) (*FileSource, error) {
	if path == "" || path == "-" {
		return NewReaderSource("stdin", os.Stdin, batchSize, logger), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	src := NewReaderSource(path, f, batchSize, logger)
	src.closer = f
	return src, nil
}

// NewReaderSource reads records from r.
func NewReaderSource(name string, r io.Reader, batchSize int, logger *logrus.Entry) *FileSource {
	if batchSize < 1 {
		batchSize = DefaultFileBatchSize
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileSource{name: name, r: r, batchSize: batchSize, logger: logger}
}

// Run dispatches batches until EOF. A line that does not decode stops the
// run with its line number; records before it have been dispatched.
func (s *FileSource) Run(ctx context.Context, fn BatchFunc) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	batch := make([]*types.Record, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tagSource(batch, s.name)
		err := fn(ctx, batch)
		batch = make([]*types.Record, 0, s.batchSize)
		return err
	}

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rec, err := stream.DecodeRecord([]byte(text))
		if err != nil {
			return fmt.Errorf("%s:%d: %w", s.name, line, err)
		}
		batch = append(batch, rec)
		if len(batch) == s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", s.name, err)
	}
	if err := flush(); err != nil {
		return err
	}
	s.logger.WithField("lines", line).Debug("record file exhausted")
	return nil
}

// Close closes the underlying file, if any.
func (s *FileSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
