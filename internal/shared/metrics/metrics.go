package metrics

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

var (
	httpRequestsTotal atomic.Uint64
	httpRetriesTotal  atomic.Uint64
	submissionsTotal  atomic.Uint64
	pollsTotal        atomic.Uint64

	errorsMu    sync.Mutex
	errorsTotal = map[string]uint64{}

	requestDuration = newHistogram([]float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 120000})
)

// IncHTTPRequests counts one HTTP attempt, retries included.
func IncHTTPRequests() {
	httpRequestsTotal.Add(1)
}

// IncRetries counts one transport retry.
func IncRetries() {
	httpRetriesTotal.Add(1)
}

// IncSubmissions counts one analysis submission.
func IncSubmissions() {
	submissionsTotal.Add(1)
}

// IncPolls counts one status check.
func IncPolls() {
	pollsTotal.Add(1)
}

// IncErrors counts one returned error of the given kind.
func IncErrors(kind string) {
	errorsMu.Lock()
	errorsTotal[kind]++
	errorsMu.Unlock()
}

// ObserveRequestDurationMs records an HTTP attempt duration in milliseconds.
func ObserveRequestDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	requestDuration.Observe(value)
}

// WriteTo writes Render's output to w.
func WriteTo(w io.Writer) error {
	_, err := io.WriteString(w, Render())
	return err
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "bridgeiq_http_requests_total", "HTTP attempts sent to BridgeIQ", httpRequestsTotal.Load())
	writeCounter(&buf, "bridgeiq_http_retries_total", "HTTP attempts retried by the transport", httpRetriesTotal.Load())
	writeCounter(&buf, "bridgeiq_submissions_total", "Analysis submissions", submissionsTotal.Load())
	writeCounter(&buf, "bridgeiq_polls_total", "Status checks", pollsTotal.Load())
	writeLabeledCounter(&buf, "bridgeiq_errors_total", "Errors returned to callers by kind", "kind", snapshotErrors())
	writeHistogram(&buf, "bridgeiq_http_request_duration_ms", "HTTP attempt duration in milliseconds", requestDuration.Snapshot())
	return buf.String()
}

func snapshotErrors() map[string]uint64 {
	errorsMu.Lock()
	defer errorsMu.Unlock()
	out := make(map[string]uint64, len(errorsTotal))
	for k, v := range errorsTotal {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket whose bound it does not exceed.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
