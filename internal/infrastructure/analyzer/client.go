// Package analyzer implements the HTTP client for the external coredump
// analyzer sidecar.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fleethub/internal/config"
	"fleethub/internal/infrastructure/metrics"
)

// Client calls the analyzer sidecar. Any non-2xx response or transport
// failure is a retryable failure from the caller's perspective.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.AnalyzerURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.AnalyzerTimeout,
		},
		log: log.With().Str("component", "analyzer-client").Logger(),
	}
}

type parseResponse struct {
	Output string `json:"output"`
}

// Parse asks the sidecar to decode the staged core file against the
// staged symbol file and returns the human-readable output.
func (c *Client) Parse(ctx context.Context, corePath, elfPath, chip string) (string, error) {
	query := url.Values{}
	query.Set("core", corePath)
	query.Set("elf", elfPath)
	query.Set("chip", chip)

	endpoint := fmt.Sprintf("%s/parse?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordAnalyzerCall(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("analyzer returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode analyzer response: %w", err)
	}
	return parsed.Output, nil
}
