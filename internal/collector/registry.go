package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/metrics"
	"go.uber.org/zap"
)

// Registry dispatches collection to the collector registered for a
// source's type. It applies the configured timeout and entry cap and
// returns entries sorted by timestamp.
type Registry struct {
	mu         sync.RWMutex
	sources    SourceFinder
	collectors map[domain.SourceType]Collector
	timeout    time.Duration
	maxEntries int
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(sources SourceFinder, cfg *config.CollectorConfig, logger *zap.Logger) *Registry {
	return &Registry{
		sources:    sources,
		collectors: make(map[domain.SourceType]Collector),
		timeout:    cfg.Timeout,
		maxEntries: cfg.MaxEntries,
		logger:     logger.Named("collector_registry"),
	}
}

// NewDefaultRegistry creates a registry with every built-in collector.
func NewDefaultRegistry(sources SourceFinder, cfg *config.CollectorConfig, logger *zap.Logger) *Registry {
	r := NewRegistry(sources, cfg, logger)
	r.Register(domain.SourcePrometheus, NewPrometheusCollector(cfg, logger))
	r.Register(domain.SourceZabbix, NewZabbixCollector(cfg, logger))
	r.Register(domain.SourceCustom, NewHTTPCollector(cfg, logger))
	r.Register(domain.SourceFile, NewFileCollector(logger))
	return r
}

// Register sets the collector for a source type, replacing any previous one.
func (r *Registry) Register(sourceType domain.SourceType, c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[sourceType] = c
}

func (r *Registry) collectorFor(source *domain.LogSource) (Collector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[source.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source.Type())
	}
	return c, nil
}

// Collect loads the source and returns its entries within timeRange.
func (r *Registry) Collect(ctx context.Context, sourceID string, timeRange domain.TimeRange) ([]*domain.LogEntry, error) {
	source, err := r.sources.FindByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	c, err := r.collectorFor(source)
	if err != nil {
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	entries, err := c.Collect(ctx, source, timeRange)
	if err != nil {
		r.logger.Warn("collection failed",
			zap.String("source_id", sourceID),
			zap.String("source_type", string(source.Type())),
			zap.Error(err),
		)
		return nil, domain.WrapError("collect", fmt.Errorf("%w: %w", domain.ErrCollectorFailed, err), false)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp().Before(entries[j].Timestamp())
	})
	if r.maxEntries > 0 && len(entries) > r.maxEntries {
		r.logger.Warn("collection truncated",
			zap.String("source_id", sourceID),
			zap.Int("collected", len(entries)),
			zap.Int("max_entries", r.maxEntries),
		)
		entries = entries[:r.maxEntries]
	}

	tag := strings.ToLower(string(source.Type()))
	for _, e := range entries {
		e.AddTag(tag)
	}

	metrics.CollectedLogs.WithLabelValues(string(source.Type())).Add(float64(len(entries)))
	r.logger.Debug("collected logs",
		zap.String("source_id", sourceID),
		zap.Int("count", len(entries)),
		zap.Duration("duration", time.Since(start)),
	)
	return entries, nil
}

// TestConnection reports whether the source's backend is reachable. A
// failed check returns false together with its cause; a lookup failure
// returns the repository error.
func (r *Registry) TestConnection(ctx context.Context, sourceID string) (bool, error) {
	source, err := r.sources.FindByID(ctx, sourceID)
	if err != nil {
		return false, err
	}
	c, err := r.collectorFor(source)
	if err != nil {
		return false, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := c.TestConnection(ctx, source); err != nil {
		r.logger.Info("connection test failed",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		return false, fmt.Errorf("%w: %w", domain.ErrCollectorFailed, err)
	}
	return true, nil
}
