package bridgeiq

import (
	"context"
	"sync"
	"time"
)

// Client is the blocking BridgeIQ client. It is safe for concurrent use.
type Client struct {
	core *engine

	mu     sync.RWMutex
	closed bool
}

// New builds a client for one device/credential pair.
func New(cfg Config, opts ...Option) (*Client, error) {
	core, err := newEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{core: core}, nil
}

// Use runs fn with a new client and closes it on every exit path.
func Use(cfg Config, fn func(*Client) error, opts ...Option) error {
	c, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// Close releases pooled connections. Later calls return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.core.close()
	return nil
}

func (c *Client) open() (*engine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.core, nil
}

// Config returns the effective configuration, defaults applied.
func (c *Client) Config() Config { return c.core.cfg }

// HealthCheck probes the service health endpoint.
func (c *Client) HealthCheck(ctx context.Context) (HealthReport, error) {
	core, err := c.open()
	if err != nil {
		return HealthReport{}, err
	}
	return core.healthCheck(ctx)
}

// IsHealthy reports whether the service considers itself healthy.
func (c *Client) IsHealthy(ctx context.Context) (bool, error) {
	report, err := c.HealthCheck(ctx)
	return report.Healthy, err
}

// Submit sends image for analysis. An empty filename is sent as image.dcm.
func (c *Client) Submit(ctx context.Context, image []byte, filename string, opts SubmitOptions) (AnalysisRequest, error) {
	core, err := c.open()
	if err != nil {
		return AnalysisRequest{}, err
	}
	return core.submit(ctx, image, filename, opts)
}

// SubmitFile reads the image at path and submits it.
func (c *Client) SubmitFile(ctx context.Context, path string, opts SubmitOptions) (AnalysisRequest, error) {
	core, err := c.open()
	if err != nil {
		return AnalysisRequest{}, err
	}
	return core.submitFile(ctx, path, opts)
}

// CheckStatus returns the current status of a request.
func (c *Client) CheckStatus(ctx context.Context, requestID string) (AnalysisStatus, error) {
	core, err := c.open()
	if err != nil {
		return AnalysisStatus{}, err
	}
	return core.checkStatus(ctx, requestID)
}

// AwaitCompletion blocks until the request completes or fails, or until
// timeout elapses, polling every interval. Zero values select
// DefaultWaitTimeout and DefaultPollInterval.
func (c *Client) AwaitCompletion(ctx context.Context, requestID string, timeout, interval time.Duration) (AnalysisStatus, error) {
	core, err := c.open()
	if err != nil {
		return AnalysisStatus{}, err
	}
	return core.awaitCompletion(ctx, requestID, timeout, interval)
}

// FetchArtifact downloads a report link and returns its content.
func (c *Client) FetchArtifact(ctx context.Context, link string) ([]byte, error) {
	core, err := c.open()
	if err != nil {
		return nil, err
	}
	return core.fetchArtifact(ctx, link)
}

// DownloadReport fetches link and stores it under key, returning the size.
func (c *Client) DownloadReport(ctx context.Context, link, key string) (int64, error) {
	core, err := c.open()
	if err != nil {
		return 0, err
	}
	return core.downloadReport(ctx, link, key)
}
