package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/solixa/internal/metrics"
)

// ErrUpstream marks failures of an external service, as opposed to bad
// input from our own caller.
var ErrUpstream = errors.New("upstream service error")

// DefaultMaxElapsed bounds retries of rate-limited or failing upstream calls.
const DefaultMaxElapsed = 30 * time.Second

// GetJSON fetches url and decodes the JSON body into out. 429 and 5xx
// responses are retried with exponential backoff for up to maxElapsed; other
// failures are permanent. Errors wrap ErrUpstream.
func GetJSON(ctx context.Context, c *http.Client, service, url string, maxElapsed time.Duration, out any) error {
	if maxElapsed <= 0 {
		maxElapsed = DefaultMaxElapsed
	}
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	status := 0
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/geo+json, application/json")

		resp, err := c.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("fetch %s: %w", service, err)
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%s: status %d", service, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("%s: status %d: %s", service, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues(service, statusLabel(status)).Inc()
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	metrics.UpstreamCallsTotal.WithLabelValues(service, "ok").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrUpstream, service, err)
	}
	return nil
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
