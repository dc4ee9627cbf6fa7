package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// maxResponseBytes bounds a single backend response body.
const maxResponseBytes = 64 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// applyAuth sets credentials from the source on req. A "token" credential
// wins over "username"/"password"; "apiKey" is sent as X-API-Key.
func applyAuth(req *http.Request, source *domain.LogSource) {
	switch {
	case source.Credential("token") != "":
		req.Header.Set("Authorization", "Bearer "+source.Credential("token"))
	case source.Credential("username") != "":
		req.SetBasicAuth(source.Credential("username"), source.Credential("password"))
	}
	if key := source.Credential("apiKey"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
}

// do executes req and returns the body of a 2xx response.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s returned status %d: %s", req.Method, req.URL.Path, resp.StatusCode, preview(body))
	}
	return body, nil
}

func get(ctx context.Context, client *http.Client, url string, source *domain.LogSource) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	applyAuth(req, source)
	return do(client, req)
}

func preview(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
