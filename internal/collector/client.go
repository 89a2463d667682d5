package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mpark1306/TempMate12/internal/models"
	"github.com/mpark1306/TempMate12/internal/observability"
)

// Collector is the remote side of the delivery protocol.
type Collector interface {
	PostReading(ctx context.Context, r models.Reading) (int, error)
	Reset(ctx context.Context) error
}

var (
	// ErrTransport means the request never completed: connection refused,
	// timeout, DNS failure. The only kind of failure the delivery protocol
	// recognizes.
	ErrTransport = errors.New("collector unreachable")

	// ErrResetRejected means /reset completed but returned something other
	// than 200.
	ErrResetRejected = errors.New("reset rejected")
)

// Client talks to the remote collector over plain HTTP.
type Client struct {
	logURL   string
	resetURL string
	client   *http.Client
}

// New validates baseURL and returns a Client with the given transport
// timeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("collector URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid collector URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("collector URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("collector URL has no host: %q", baseURL)
	}
	return &Client{
		logURL:   baseURL + "/log",
		resetURL: baseURL + "/reset",
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// PostReading sends one reading as a form-encoded POST to /log and returns
// the response status code. Only a transport error is a failure; any
// completed response, 2xx or not, is success for the item. The collector
// side never acknowledged per item, and inspecting status codes here would
// change which passes drain the buffer.
func (c *Client) PostReading(ctx context.Context, r models.Reading) (int, error) {
	// Built by hand to keep timestamp before temperature on the wire.
	body := "timestamp=" + url.QueryEscape(r.Timestamp) +
		"&temperature=" + strconv.FormatFloat(r.Temperature, 'f', 2, 64)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logURL, strings.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CollectorPostsTotal.WithLabelValues("error").Inc()
		observability.CollectorPostDuration.WithLabelValues("error").Observe(duration)
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	status := statusLabel(resp.StatusCode)
	observability.CollectorPostsTotal.WithLabelValues(status).Inc()
	observability.CollectorPostDuration.WithLabelValues(status).Observe(duration)
	return resp.StatusCode, nil
}

// Reset asks the collector to drop its stored data via GET /reset. Stricter
// than delivery: only an exact 200 counts as success.
func (c *Client) Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resetURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ResetRequestsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		observability.ResetRequestsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("%w: HTTP %d", ErrResetRejected, resp.StatusCode)
	}
	observability.ResetRequestsTotal.WithLabelValues("success").Inc()
	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
