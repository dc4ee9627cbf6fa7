package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// ZabbixCollector reads trigger events through the Zabbix JSON-RPC API.
type ZabbixCollector struct {
	httpClient *http.Client
	parser     fastjson.ParserPool
	requestID  atomic.Int64
	logger     *zap.Logger
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// NewZabbixCollector creates a Zabbix collector.
func NewZabbixCollector(cfg *config.CollectorConfig, logger *zap.Logger) *ZabbixCollector {
	return &ZabbixCollector{
		httpClient: newHTTPClient(cfg.Timeout),
		logger:     logger.Named("zabbix_collector"),
	}
}

// apiURL resolves the JSON-RPC endpoint; a bare frontend URL gets
// api_jsonrpc.php appended.
func apiURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(endpoint, ".php") {
		return endpoint
	}
	return endpoint + "/api_jsonrpc.php"
}

// call performs one JSON-RPC call and hands the "result" value to fn while
// the parser is still held.
func (c *ZabbixCollector) call(ctx context.Context, source *domain.LogSource, auth, method string, params any, fn func(*fastjson.Value) error) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(source.Endpoint()), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}

	respBody, err := do(c.httpClient, req)
	if err != nil {
		return err
	}

	p := c.parser.Get()
	defer c.parser.Put(p)

	v, err := p.ParseBytes(respBody)
	if err != nil {
		return fmt.Errorf("parse %s response: %w", method, err)
	}
	if e := v.Get("error"); e != nil {
		return fmt.Errorf("zabbix %s failed: %s %s", method, e.GetStringBytes("message"), e.GetStringBytes("data"))
	}
	result := v.Get("result")
	if result == nil {
		return fmt.Errorf("zabbix %s returned no result", method)
	}
	return fn(result)
}

// login returns an API token, preferring a configured "token" credential.
func (c *ZabbixCollector) login(ctx context.Context, source *domain.LogSource) (string, error) {
	if token := source.Credential("token"); token != "" {
		return token, nil
	}
	username := source.Credential("username")
	if username == "" {
		return "", fmt.Errorf("zabbix source %q has no token or username credential", source.Name())
	}

	var token string
	err := c.call(ctx, source, "", "user.login", map[string]string{
		"username": username,
		"password": source.Credential("password"),
	}, func(v *fastjson.Value) error {
		token = string(v.GetStringBytes())
		if token == "" {
			return fmt.Errorf("zabbix user.login returned an empty token")
		}
		return nil
	})
	return token, err
}

// Collect fetches the events raised within timeRange.
func (c *ZabbixCollector) Collect(ctx context.Context, source *domain.LogSource, timeRange domain.TimeRange) ([]*domain.LogEntry, error) {
	auth, err := c.login(ctx, source)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"output":      "extend",
		"selectHosts": []string{"host"},
		"time_from":   timeRange.Start().Unix(),
		"time_till":   timeRange.End().Unix(),
		"sortfield":   []string{"clock", "eventid"},
		"sortorder":   "ASC",
	}

	var entries []*domain.LogEntry
	err = c.call(ctx, source, auth, "event.get", params, func(result *fastjson.Value) error {
		for _, ev := range result.GetArray() {
			entry, err := c.toEntry(source, ev)
			if err != nil {
				c.logger.Debug("skipping event", zap.Error(err))
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *ZabbixCollector) toEntry(source *domain.LogSource, ev *fastjson.Value) (*domain.LogEntry, error) {
	clock, err := strconv.ParseInt(string(ev.GetStringBytes("clock")), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("event %s has invalid clock: %w", ev.GetStringBytes("eventid"), err)
	}
	severity, _ := strconv.Atoi(string(ev.GetStringBytes("severity")))

	message := string(ev.GetStringBytes("name"))
	host := ""
	if hosts := ev.GetArray("hosts"); len(hosts) > 0 {
		host = string(hosts[0].GetStringBytes("host"))
		message = fmt.Sprintf("%s on %s", message, host)
	}
	// value 0 is the recovery event of a trigger
	if string(ev.GetStringBytes("value")) == "0" {
		message = "Resolved: " + message
	}

	return domain.NewLogEntry(source.ID(), time.Unix(clock, 0).UTC(), zabbixLevel(severity), message, ev.String(),
		map[string]any{
			"collector": "zabbix",
			"endpoint":  source.Endpoint(),
			"eventId":   string(ev.GetStringBytes("eventid")),
			"severity":  severity,
			"host":      host,
		},
		[]string{"monitoring"},
	)
}

// TestConnection calls apiinfo.version, which needs no authentication.
func (c *ZabbixCollector) TestConnection(ctx context.Context, source *domain.LogSource) error {
	return c.call(ctx, source, "", "apiinfo.version", []string{}, func(v *fastjson.Value) error {
		c.logger.Debug("zabbix reachable",
			zap.String("source_id", source.ID()),
			zap.ByteString("version", v.GetStringBytes()),
		)
		return nil
	})
}
