package bridgeiq

import (
	"context"
	"sync"
	"time"
)

// Task is the pending result of an AsyncClient operation.
type Task[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	val    T
	err    error
}

// Done is closed once the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Cancel aborts the task, including any request in flight.
func (t *Task[T]) Cancel() { t.cancel() }

// Wait blocks until the task finishes or ctx is done. A canceled ctx does
// not cancel the task; call Cancel for that.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func failedTask[T any](err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), cancel: func() {}, err: err}
	close(t.done)
	return t
}

// AsyncClient runs client operations as cancellable tasks. The HTTP client
// is created on the first operation, so an AsyncClient that never starts a
// task never opens a connection.
type AsyncClient struct {
	cfg  Config
	opts []Option

	mu     sync.Mutex
	core   *engine
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// NewAsync validates cfg and returns an unconnected AsyncClient.
func NewAsync(cfg Config, opts ...Option) (*AsyncClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncClient{cfg: cfg, opts: opts, ctx: ctx, cancel: cancel}, nil
}

// WithAsync runs fn with a new AsyncClient and closes it on every exit path,
// canceling tasks fn left running.
func WithAsync(ctx context.Context, cfg Config, fn func(context.Context, *AsyncClient) error, opts ...Option) error {
	a, err := NewAsync(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// Connected reports whether the underlying HTTP client has been created.
func (a *AsyncClient) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.core != nil
}

// Close cancels running tasks, waits for them to return and releases the
// connection pool. Later operations fail with ErrClientClosed.
func (a *AsyncClient) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.cancel()
	a.mu.Unlock()

	a.tasks.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.core != nil {
		a.core.close()
	}
	return nil
}

// acquire returns the engine, creating it on first use, and registers one
// running task.
func (a *AsyncClient) acquire() (*engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClientClosed
	}
	if a.core == nil {
		core, err := newEngine(a.cfg, a.opts...)
		if err != nil {
			return nil, err
		}
		a.core = core
	}
	a.tasks.Add(1)
	return a.core, nil
}

func start[T any](a *AsyncClient, ctx context.Context, fn func(context.Context, *engine) (T, error)) *Task[T] {
	core, err := a.acquire()
	if err != nil {
		return failedTask[T](err)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	t := &Task[T]{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer a.tasks.Done()
		defer close(t.done)
		defer stop()
		defer cancel()
		t.val, t.err = fn(taskCtx, core)
	}()
	return t
}

// HealthCheck probes the service health endpoint.
func (a *AsyncClient) HealthCheck(ctx context.Context) *Task[HealthReport] {
	return start(a, ctx, func(ctx context.Context, e *engine) (HealthReport, error) {
		return e.healthCheck(ctx)
	})
}

// IsHealthy reports whether the service considers itself healthy.
func (a *AsyncClient) IsHealthy(ctx context.Context) *Task[bool] {
	return start(a, ctx, func(ctx context.Context, e *engine) (bool, error) {
		report, err := e.healthCheck(ctx)
		return report.Healthy, err
	})
}

// Submit sends image for analysis.
func (a *AsyncClient) Submit(ctx context.Context, image []byte, filename string, opts SubmitOptions) *Task[AnalysisRequest] {
	return start(a, ctx, func(ctx context.Context, e *engine) (AnalysisRequest, error) {
		return e.submit(ctx, image, filename, opts)
	})
}

// SubmitFile reads the image at path and submits it.
func (a *AsyncClient) SubmitFile(ctx context.Context, path string, opts SubmitOptions) *Task[AnalysisRequest] {
	return start(a, ctx, func(ctx context.Context, e *engine) (AnalysisRequest, error) {
		return e.submitFile(ctx, path, opts)
	})
}

// CheckStatus fetches the current status of a request.
func (a *AsyncClient) CheckStatus(ctx context.Context, requestID string) *Task[AnalysisStatus] {
	return start(a, ctx, func(ctx context.Context, e *engine) (AnalysisStatus, error) {
		return e.checkStatus(ctx, requestID)
	})
}

// AwaitCompletion polls in the background until the request reaches a
// terminal state or timeout elapses.
func (a *AsyncClient) AwaitCompletion(ctx context.Context, requestID string, timeout, interval time.Duration) *Task[AnalysisStatus] {
	return start(a, ctx, func(ctx context.Context, e *engine) (AnalysisStatus, error) {
		return e.awaitCompletion(ctx, requestID, timeout, interval)
	})
}

// FetchArtifact downloads a report link.
func (a *AsyncClient) FetchArtifact(ctx context.Context, link string) *Task[[]byte] {
	return start(a, ctx, func(ctx context.Context, e *engine) ([]byte, error) {
		return e.fetchArtifact(ctx, link)
	})
}

// DownloadReport fetches link and stores it under key.
func (a *AsyncClient) DownloadReport(ctx context.Context, link, key string) *Task[int64] {
	return start(a, ctx, func(ctx context.Context, e *engine) (int64, error) {
		return e.downloadReport(ctx, link, key)
	})
}
