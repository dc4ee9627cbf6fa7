package collector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/hpcloud/tail"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// FileCollector reads a local log file once, from the start. The source
// endpoint is the file path.
//
// JSON lines use the timestamp/level/message keys understood by the HTTP
// collector; other lines are parsed as "<RFC3339> <LEVEL> message". A line
// without a timestamp continues the previous stamped line: it inherits that
// line's time and is dropped with it. Leading unstamped lines take the end
// of the range.
type FileCollector struct {
	parser fastjson.ParserPool
	logger *zap.Logger
}

// NewFileCollector creates a FILE source collector.
func NewFileCollector(logger *zap.Logger) *FileCollector {
	return &FileCollector{logger: logger.Named("file_collector")}
}

// Collect reads the file and keeps the entries within timeRange.
func (c *FileCollector) Collect(ctx context.Context, source *domain.LogSource, timeRange domain.TimeRange) ([]*domain.LogEntry, error) {
	t, err := tail.TailFile(source.Endpoint(), tail.Config{
		Follow:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source.Endpoint(), err)
	}
	defer t.Cleanup()

	p := c.parser.Get()
	defer c.parser.Put(p)

	var (
		entries     []*domain.LogEntry
		last        = timeRange.End()
		lastDropped bool
		lineNo      int
		dropped     int
	)
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil, ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				c.logger.Debug("file read",
					zap.String("path", source.Endpoint()),
					zap.Int("lines", lineNo),
					zap.Int("entries", len(entries)),
					zap.Int("dropped", dropped),
				)
				return entries, nil
			}
			if line.Err != nil {
				return nil, fmt.Errorf("read %s: %w", source.Endpoint(), line.Err)
			}
			lineNo++

			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			rec := c.parseLine(p, text)
			if rec.Message == "" {
				continue
			}
			if rec.Timestamp.IsZero() {
				if lastDropped {
					dropped++
					continue
				}
				rec.Timestamp = last
			} else {
				last = rec.Timestamp
				lastDropped = !timeRange.Contains(rec.Timestamp)
				if lastDropped {
					dropped++
					continue
				}
			}

			metadata := rec.Fields
			if metadata == nil {
				metadata = make(map[string]any)
			}
			metadata["collector"] = "file"
			metadata["path"] = source.Endpoint()
			metadata["line"] = lineNo

			entry, err := domain.NewLogEntry(source.ID(), rec.Timestamp, rec.Level, rec.Message, text, metadata, nil)
			if err != nil {
				dropped++
				continue
			}
			entries = append(entries, entry)
		}
	}
}

func (c *FileCollector) parseLine(p *fastjson.Parser, text string) record {
	if strings.HasPrefix(text, "{") {
		if v, err := p.Parse(text); err == nil {
			if rec, ok := parseJSONRecord(v); ok {
				return rec
			}
		}
	}
	return parseTextRecord(text)
}

// TestConnection checks that the path is a readable regular file.
func (c *FileCollector) TestConnection(ctx context.Context, source *domain.LogSource) error {
	f, err := os.Open(source.Endpoint())
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", source.Endpoint())
	}
	return nil
}
