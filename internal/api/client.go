package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jmorrison-juniper/misthelper/internal/config"
	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/http"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	client *Client
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.client.logger.Error().Fields(keysAndValues).Msgf("[RETRY ERROR] %s", msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.client.logger.Debug().Fields(keysAndValues).Msgf("[RETRY] %s", msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.client.logger.Warn().Fields(keysAndValues).Msgf("[RETRY WARN] %s", msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	callsByPath   map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client represents the Mist REST API client
type Client struct {
	httpClient *nethttp.Client
	config     *config.Config
	baseURL    string
	apiKey     string
	metrics    *apiMetrics // API usage tracking
	logger     *logging.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIHost) == "" {
		return nil, fmt.Errorf("API base URL is empty: set MIST_HOST or --api-host")
	}

	// Configure HTTP client with proxy support
	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Wrap with retry logic. 429 and 5xx are retried with backoff that honours
	// Retry-After; the adaptive pacer keeps us well away from 429 in practice.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 10
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second

	c := &Client{
		config:  cfg,
		baseURL: cfg.APIBaseURL(),
		apiKey:  cfg.APIToken,
		metrics: &apiMetrics{
			callsByPath: make(map[string]int64),
			windowStart: time.Now(),
		},
		logger: logging.Nop(),
	}
	retryClient.Logger = &retryLogger{client: c}
	c.httpClient = retryClient.StandardClient()
	return c, nil
}

// SetLogger sends request, retry and usage logging to l. Call before use.
func (c *Client) SetLogger(l *logging.Logger) {
	if l != nil {
		c.logger = l
	}
}

// resolvePath turns a path relative to /api/v1 into an absolute request path.
// Paths that already carry the prefix (next links) are used unchanged.
func resolvePath(path string) string {
	if strings.HasPrefix(path, constants.APIPrefix+"/") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return constants.APIPrefix + path
}

// doRequest performs an HTTP request with authentication and usage tracking
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	path = resolvePath(path)

	// Track API call metrics
	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.callsInWindow++

	// Log stats every 30 seconds
	if elapsed := time.Since(c.metrics.windowStart); elapsed >= constants.APIStatsInterval {
		reqPerSec := float64(c.metrics.callsInWindow) / elapsed.Seconds()
		// Mist's default budget is 5000 requests/hour, ~1.39/sec
		hourlyRate := reqPerSec * 3600
		c.logger.Info().
			Float64("req_per_sec", reqPerSec).
			Int64("total_calls", c.metrics.totalCalls).
			Msgf("API usage: %.2f req/sec (~%.0f/hour, default budget %d/hour)",
				reqPerSec, hourlyRate, constants.DefaultRequestLimit)

		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
	c.metrics.Unlock()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add headers
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Log detailed error information
		ev := c.logger.Error().Err(err).Str("method", method).Str("path", path)
		errStr := err.Error()
		if strings.Contains(errStr, "TLS handshake timeout") {
			ev = ev.Str("hint", "TLS handshake timeout (proxy or connection pool)")
		} else if strings.Contains(errStr, "timeout") {
			ev = ev.Str("hint", "client timeout or network issue")
		}
		ev.Msg("API call failed")

		return nil, fmt.Errorf("request failed: %w", err)
	}

	// Check for rate limit (429 Too Many Requests) response
	if resp.StatusCode == nethttp.StatusTooManyRequests {
		ev := c.logger.Warn().Str("method", method).Str("path", path)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			ev = ev.Str("retry_after", retryAfter)
		}
		ev.Msg("THROTTLED: hourly API budget exhausted")
	}

	return resp, nil
}

// getJSON issues a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	resp, err := c.doRequest(ctx, "GET", path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return newAPIError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
