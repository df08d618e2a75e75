package bridgeiq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bridgeiq-client/internal/shared/metrics"
	"bridgeiq-client/internal/shared/telemetry"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *response) ok() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

var retryStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

const (
	// maxRetryAfter caps how long a Retry-After header may stall a call.
	maxRetryAfter = 30 * time.Second
	// maxBackoff caps the exponential delay between attempts.
	maxBackoff = 120 * time.Second
)

// transport executes requests with bounded retries. Only GET and POST are
// retried, on network errors and on the statuses in retryStatuses.
type transport struct {
	doer       Doer
	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func newTransport(doer Doer, cfg Config) *transport {
	return &transport{
		doer:       doer,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.BackoffFactor,
		sleep:      sleepContext,
	}
}

// do sends one logical request. body is replayed on each attempt. op names
// the operation in error messages and logs.
func (t *transport) do(ctx context.Context, op, method, target string, header http.Header, body []byte) (*response, error) {
	retryable := method == http.MethodGet || method == http.MethodPost

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := t.once(ctx, method, target, header, body)
		metrics.IncHTTPRequests()
		metrics.ObserveRequestDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !retryable || attempt >= t.maxRetries {
				return nil, &Error{
					Kind:    KindConnection,
					Message: fmt.Sprintf("Connection error during %s: %v", op, err),
					Err:     err,
				}
			}
			if err := t.wait(ctx, op, attempt, 0, err.Error()); err != nil {
				return nil, err
			}
			continue
		}

		if _, ok := retryStatuses[resp.StatusCode]; ok && retryable && attempt < t.maxRetries {
			if err := t.wait(ctx, op, attempt, retryAfter(resp.Header), fmt.Sprintf("status %d", resp.StatusCode)); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
}

func (t *transport) once(ctx context.Context, method, target string, header http.Header, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// wait sleeps before retry attempt+1. The delay is backoff * 2^attempt,
// capped at maxBackoff and raised to the server's Retry-After hint when
// that is longer.
func (t *transport) wait(ctx context.Context, op string, attempt int, hint time.Duration, reason string) error {
	delay := t.backoff
	for i := 0; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	if hint > delay {
		delay = hint
	}
	metrics.IncRetries()
	telemetry.Warn("bridgeiq.retry", map[string]any{
		"op":       op,
		"attempt":  attempt + 1,
		"max":      t.maxRetries,
		"delay_ms": delay.Milliseconds(),
		"reason":   reason,
	})
	return t.sleep(ctx, delay)
}

func retryAfter(h http.Header) time.Duration {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
