package bridgeiq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"bridgeiq-client/internal/device"
	"bridgeiq-client/internal/shared/metrics"
	localstore "bridgeiq-client/internal/shared/storage/object/local"
	"bridgeiq-client/internal/shared/telemetry"
)

// FileReader opens stored input files by key.
type FileReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ArtifactWriter persists downloaded artifacts under a key and returns the
// number of bytes written.
type ArtifactWriter interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
}

// Option customizes a client.
type Option func(*options)

type options struct {
	files     FileReader
	artifacts ArtifactWriter
	userAgent func() string
	doer      Doer
}

// WithFileReader sets where SubmitFile reads images from. By default paths
// are read from the local filesystem.
func WithFileReader(r FileReader) Option {
	return func(o *options) { o.files = r }
}

// WithArtifactWriter sets where DownloadReport stores reports. By default
// keys are treated as local file paths.
func WithArtifactWriter(w ArtifactWriter) Option {
	return func(o *options) { o.artifacts = w }
}

// WithUserAgentFunc replaces the device User-Agent generator.
func WithUserAgentFunc(fn func() string) Option {
	return func(o *options) { o.userAgent = fn }
}

// WithDoer routes requests through d instead of an *http.Client. Close then
// has no connections to release.
func WithDoer(d Doer) Option {
	return func(o *options) { o.doer = d }
}

// engine is the lifecycle core shared by Client and AsyncClient.
type engine struct {
	cfg       Config
	base      *url.URL
	http      *http.Client
	transport *transport
	files     FileReader
	artifacts ArtifactWriter
	userAgent string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newEngine(cfg Config, opts ...Option) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &engine{
		cfg:       cfg,
		base:      base,
		files:     o.files,
		artifacts: o.artifacts,
		now:       time.Now,
		sleep:     sleepContext,
	}

	doer := o.doer
	if doer == nil {
		e.http = cfg.HTTPClient
		if e.http == nil {
			e.http = &http.Client{Timeout: cfg.Timeout}
		}
		doer = e.http
	}
	e.transport = newTransport(doer, cfg)

	switch {
	case cfg.UserAgent != "":
		e.userAgent = cfg.UserAgent
	case o.userAgent != nil:
		e.userAgent = o.userAgent()
	default:
		e.userAgent = device.UserAgent(Version)
	}
	return e, nil
}

func (e *engine) close() {
	if e.http != nil {
		e.http.CloseIdleConnections()
	}
}

// submit sends one image for analysis.
func (e *engine) submit(ctx context.Context, image []byte, filename string, opts SubmitOptions) (AnalysisRequest, error) {
	if len(image) == 0 {
		return AnalysisRequest{}, newValidationError("image", "Validation error: image is empty")
	}
	sub, err := buildSubmission(image, filename, opts)
	if err != nil {
		return AnalysisRequest{}, &Error{Kind: KindValidation, Field: "image", Message: "Validation error: " + err.Error(), Err: err}
	}

	header := e.headers()
	header.Set("Content-Type", sub.contentType)

	telemetry.Info("bridgeiq.submit", map[string]any{
		"device":           e.cfg.DevicePath,
		"filename":         filename,
		"size_bytes":       len(image),
		"radiography_type": opts.RadiographyType,
	})
	metrics.IncSubmissions()

	resp, err := e.transport.do(ctx, "analysis request", http.MethodPost, e.requestsURL(), header, sub.body)
	if err != nil {
		return AnalysisRequest{}, e.fail("analysis request", err)
	}

	var req AnalysisRequest
	if err := e.decode(resp, &req); err != nil {
		return AnalysisRequest{}, e.fail("analysis request", err)
	}
	if err := req.validate(); err != nil {
		return AnalysisRequest{}, e.fail("analysis request", &Error{
			Kind:       KindGeneric,
			Message:    "invalid analysis request: " + err.Error(),
			StatusCode: resp.StatusCode,
			Err:        err,
		})
	}

	telemetry.Info("bridgeiq.submitted", map[string]any{
		"request_id":  req.RequestID,
		"analysis_id": req.AnalysisID,
		"token_cost":  req.TokenCost,
	})
	return req, nil
}

// submitFile reads path through the file reader and submits it.
func (e *engine) submitFile(ctx context.Context, path string, opts SubmitOptions) (AnalysisRequest, error) {
	image, err := e.readFile(ctx, path)
	if err != nil {
		return AnalysisRequest{}, e.fail("analysis request", err)
	}
	return e.submit(ctx, image, filepath.Base(path), opts)
}

func (e *engine) readFile(ctx context.Context, path string) ([]byte, error) {
	reader, key := e.files, path
	if reader == nil {
		reader, key = localstore.New(filepath.Dir(path)), filepath.Base(path)
	}
	rc, err := reader.Open(ctx, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindValidation, Field: "image", Message: "Image file not found: " + path, Err: err}
		}
		return nil, &Error{Kind: KindValidation, Field: "image", Message: fmt.Sprintf("Could not read image %s: %v", path, err), Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Field: "image", Message: fmt.Sprintf("Could not read image %s: %v", path, err), Err: err}
	}
	return data, nil
}

// checkStatus fetches the current status of one request.
func (e *engine) checkStatus(ctx context.Context, requestID string) (AnalysisStatus, error) {
	id, err := normalizeRequestID(requestID)
	if err != nil {
		return AnalysisStatus{}, err
	}
	metrics.IncPolls()

	resp, err := e.transport.do(ctx, "status check", http.MethodGet, e.requestURL(id), e.headers(), nil)
	if err != nil {
		return AnalysisStatus{}, e.fail("status check", err)
	}

	var status AnalysisStatus
	if err := e.decode(resp, &status); err != nil {
		return AnalysisStatus{}, e.fail("status check", err)
	}
	if err := status.validate(); err != nil {
		return AnalysisStatus{}, e.fail("status check", &Error{
			Kind:       KindGeneric,
			Message:    "invalid analysis status: " + err.Error(),
			StatusCode: resp.StatusCode,
			Err:        err,
		})
	}
	telemetry.Debug("bridgeiq.status", map[string]any{
		"request_id": id,
		"status":     string(status.Status),
		"pdf_status": string(status.PDFStatus),
	})
	return status, nil
}

// awaitCompletion polls until the analysis is completed or failed, or until
// timeout elapses. The first poll is immediate and no sleep outlasts the
// remaining budget.
func (e *engine) awaitCompletion(ctx context.Context, requestID string, timeout, interval time.Duration) (AnalysisStatus, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := e.now()
	deadline := start.Add(timeout)
	telemetry.Info("bridgeiq.wait", map[string]any{
		"request_id":      requestID,
		"timeout_s":       timeout.Seconds(),
		"poll_interval_s": interval.Seconds(),
	})

	for {
		status, err := e.checkStatus(ctx, requestID)
		if err != nil {
			return AnalysisStatus{}, err
		}
		if status.IsTerminal() {
			telemetry.Info("bridgeiq.finished", map[string]any{
				"request_id": requestID,
				"status":     string(status.Status),
				"elapsed_s":  e.now().Sub(start).Seconds(),
			})
			return status, nil
		}

		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			break
		}
		delay := interval
		if delay > remaining {
			delay = remaining
		}
		if err := e.sleep(ctx, delay); err != nil {
			return AnalysisStatus{}, err
		}
		if !e.now().Before(deadline) {
			break
		}
	}

	elapsed := e.now().Sub(start)
	return AnalysisStatus{}, e.fail("wait", &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("Timeout waiting for analysis to complete (%.1fs elapsed)", elapsed.Seconds()),
	})
}

// fetchArtifact downloads a report without credential headers.
func (e *engine) fetchArtifact(ctx context.Context, link string) ([]byte, error) {
	target, err := e.artifactURL(link)
	if err != nil {
		return nil, err
	}
	header := make(http.Header, 1)
	header.Set("User-Agent", e.userAgent)

	resp, err := e.transport.do(ctx, "report download", http.MethodGet, target, header, nil)
	if err != nil {
		return nil, e.fail("report download", err)
	}
	if !resp.ok() {
		return nil, e.fail("report download", classify(resp.StatusCode, resp.Body))
	}
	return resp.Body, nil
}

// downloadReport fetches a report and stores it under key.
func (e *engine) downloadReport(ctx context.Context, link, key string) (int64, error) {
	data, err := e.fetchArtifact(ctx, link)
	if err != nil {
		return 0, err
	}
	writer, storeKey := e.artifacts, key
	if writer == nil {
		writer, storeKey = localstore.New(filepath.Dir(key)), filepath.Base(key)
	}
	n, err := writer.Put(ctx, storeKey, http.DetectContentType(data), bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("store report %s: %w", key, err)
	}
	telemetry.Info("bridgeiq.report.saved", map[string]any{"key": key, "size_bytes": n})
	return n, nil
}

// healthCheck probes the health endpoint. A 404 counts as healthy because
// deployments without the endpoint still serve the API; this is a heuristic.
func (e *engine) healthCheck(ctx context.Context) (HealthReport, error) {
	resp, err := e.transport.do(ctx, "health check", http.MethodGet, e.healthURL(), e.headers(), nil)
	if err != nil {
		return HealthReport{}, e.fail("health check", err)
	}

	report := HealthReport{StatusCode: resp.StatusCode}
	switch {
	case resp.ok():
		var body any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			telemetry.Warn("bridgeiq.health.unexpected_body", map[string]any{"body": string(resp.Body)})
			return report, nil
		}
		if obj, ok := body.(map[string]any); ok {
			if v, ok := obj["status"]; ok {
				report.Healthy = truthy(v)
				return report, nil
			}
		}
		report.Healthy = truthy(body)
	case resp.StatusCode == http.StatusNotFound:
		telemetry.Warn("bridgeiq.health.endpoint_missing", nil)
		report.Healthy = true
		report.EndpointMissing = true
	default:
		telemetry.Warn("bridgeiq.health.failed", map[string]any{"status": resp.StatusCode})
	}
	return report, nil
}

// decode classifies non-2xx responses and unwraps the success envelope.
func (e *engine) decode(resp *response, dst any) error {
	if !resp.ok() {
		return classify(resp.StatusCode, resp.Body)
	}
	data, err := unwrapEnvelope(resp.StatusCode, resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &Error{
			Kind:       KindGeneric,
			Message:    "invalid response data: " + err.Error(),
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	return nil
}

// fail records a returned error. It never swallows it.
func (e *engine) fail(op string, err error) error {
	fields := map[string]any{"op": op, "err": err.Error()}
	if kind := KindOf(err); kind != "" {
		fields["kind"] = string(kind)
		metrics.IncErrors(string(kind))
	}
	telemetry.Error("bridgeiq.error", fields)
	return err
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
