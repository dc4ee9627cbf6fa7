package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// PrometheusCollector turns a PromQL range query into log entries, one per
// sample of each returned series. The default query is ALERTS, so every
// firing alert becomes an entry per evaluation step.
type PrometheusCollector struct {
	httpClient *http.Client
	parser     fastjson.ParserPool
	query      string
	step       time.Duration
	logger     *zap.Logger
}

// NewPrometheusCollector creates a Prometheus collector.
func NewPrometheusCollector(cfg *config.CollectorConfig, logger *zap.Logger) *PrometheusCollector {
	step := cfg.PrometheusStep
	if step <= 0 {
		step = time.Minute
	}
	return &PrometheusCollector{
		httpClient: newHTTPClient(cfg.Timeout),
		query:      cfg.PrometheusQuery,
		step:       step,
		logger:     logger.Named("prometheus_collector"),
	}
}

// Collect runs query_range over timeRange. A "query" metadata value on the
// source overrides the default expression.
func (c *PrometheusCollector) Collect(ctx context.Context, source *domain.LogSource, timeRange domain.TimeRange) ([]*domain.LogEntry, error) {
	query := source.MetadataString("query")
	if query == "" {
		query = c.query
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(timeRange.Start().Unix(), 10))
	params.Set("end", strconv.FormatInt(timeRange.End().Unix(), 10))
	params.Set("step", strconv.FormatFloat(c.step.Seconds(), 'f', -1, 64))
	endpoint := strings.TrimRight(source.Endpoint(), "/") + "/api/v1/query_range?" + params.Encode()

	body, err := get(ctx, c.httpClient, endpoint, source)
	if err != nil {
		return nil, err
	}

	p := c.parser.Get()
	defer c.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse query_range response: %w", err)
	}
	if status := string(v.GetStringBytes("status")); status != "success" {
		return nil, fmt.Errorf("prometheus query failed: %s: %s", v.GetStringBytes("errorType"), v.GetStringBytes("error"))
	}

	var entries []*domain.LogEntry
	for _, series := range v.GetArray("data", "result") {
		labels := seriesLabels(series.GetObject("metric"))
		message := alertMessage(labels, query)
		level := domain.ParseLogLevel(labels["severity"])
		metric := series.Get("metric").String()

		for _, sample := range series.GetArray("values") {
			pair := sample.GetArray()
			if len(pair) != 2 {
				continue
			}
			ts := epochTime(pair[0].GetFloat64())
			if ts.IsZero() {
				continue
			}
			value := string(pair[1].GetStringBytes())

			entry, err := domain.NewLogEntry(source.ID(), ts, level, message,
				fmt.Sprintf(`{"metric":%s,"value":%s}`, metric, sample.String()),
				map[string]any{
					"collector": "prometheus",
					"endpoint":  source.Endpoint(),
					"query":     query,
					"labels":    labels,
					"value":     value,
				},
				[]string{"metrics"},
			)
			if err != nil {
				c.logger.Debug("skipping sample", zap.Error(err))
				continue
			}
			entries = append(entries, entry)
		}
	}

	c.logger.Debug("query_range completed",
		zap.String("source_id", source.ID()),
		zap.String("query", query),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// TestConnection checks the /-/healthy endpoint.
func (c *PrometheusCollector) TestConnection(ctx context.Context, source *domain.LogSource) error {
	_, err := get(ctx, c.httpClient, strings.TrimRight(source.Endpoint(), "/")+"/-/healthy", source)
	return err
}

func seriesLabels(obj *fastjson.Object) map[string]string {
	labels := make(map[string]string)
	if obj == nil {
		return labels
	}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		labels[string(key)] = string(v.GetStringBytes())
	})
	return labels
}

// alertMessage names a series by alertname or metric name, followed by
// its identifying labels in key order.
func alertMessage(labels map[string]string, query string) string {
	name := labels["alertname"]
	if name == "" {
		name = labels["__name__"]
	}
	if name == "" {
		name = query
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		switch k {
		case "alertname", "__name__", "alertstate", "severity":
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return name
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return fmt.Sprintf("%s{%s}", name, strings.Join(pairs, ", "))
}
