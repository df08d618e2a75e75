package fakeapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgeiq-client/internal/shared/server/middleware"
)

const devicePath = "/api/v1/webhooks/devices/clinic-3/requests"

func dicomImage() []byte {
	img := make([]byte, 200)
	copy(img[128:], "DICM")
	return img
}

func newTestServer(t *testing.T, cfg Config) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.Credentials == nil {
		cfg.Credentials = middleware.Credentials{"client-1": "s3cret"}
	}
	cfg.Now = func() time.Time { return time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC) }
	s := New(cfg)
	return s, s.Router()
}

func submitRequest(t *testing.T, filename string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if image != nil {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, devicePath, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	authorize(req)
	return req
}

func authorize(req *http.Request) {
	req.Header.Set("client-id", "client-1")
	req.Header.Set("client-secret", "s3cret")
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var payload map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &payload)
	return resp, payload
}

func poll(t *testing.T, r *gin.Engine, requestID string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, devicePath+"/"+requestID, nil)
	authorize(req)
	resp, payload := serve(r, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return payload["data"].(map[string]any)
}

func TestSubmitAndProgressToCompletion(t *testing.T) {
	_, r := newTestServer(t, Config{PollsToComplete: 2})

	resp, payload := serve(r, submitRequest(t, "scan.dcm", dicomImage(), map[string]string{"patient_id": "P-1"}))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "success", payload["status"])
	data := payload["data"].(map[string]any)
	assert.Equal(t, "panoramic_adult", data["radiography_type"])
	assert.Equal(t, "P-1", data["patient_id"])
	assert.EqualValues(t, 1, data["token_cost"])
	requestID := data["request_id"].(string)

	assert.Equal(t, "PENDING", poll(t, r, requestID)["analysis_status"])
	assert.Equal(t, "PROCESSING", poll(t, r, requestID)["analysis_status"])
	done := poll(t, r, requestID)
	assert.Equal(t, "COMPLETED", done["analysis_status"])
	assert.Equal(t, "COMPLETED", done["pdf_status"])
	link := done["report_pdf_link"].(string)
	require.NotEmpty(t, link)

	// Report links work without credentials.
	reportResp := httptest.NewRecorder()
	r.ServeHTTP(reportResp, httptest.NewRequest(http.MethodGet, link, nil))
	require.Equal(t, http.StatusOK, reportResp.Code)
	assert.Equal(t, "application/pdf", reportResp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(reportResp.Body.Bytes(), []byte("%PDF-")))
}

func TestSubmitNonRadiographFails(t *testing.T) {
	_, r := newTestServer(t, Config{})

	resp, payload := serve(r, submitRequest(t, "photo.png", []byte("\x89PNG\r\n\x1a\n"), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	requestID := payload["data"].(map[string]any)["request_id"].(string)

	status := poll(t, r, requestID)
	assert.Equal(t, "FAILED", status["analysis_status"])
	assert.NotEmpty(t, status["error_message"])
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		image  []byte
		fields map[string]string
		field  string
	}{
		{name: "missing image", field: "image"},
		{name: "bad radiography type", image: dicomImage(), fields: map[string]string{"radiography_type": "xray"}, field: "radiography_type"},
		{name: "bad report type", image: dicomImage(), fields: map[string]string{"report_type": "fancy"}, field: "report_type"},
	}
	_, r := newTestServer(t, Config{})
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, payload := serve(r, submitRequest(t, "scan.dcm", tt.image, tt.fields))
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.field, payload["field"])
			assert.Equal(t, "error", payload["status"])
		})
	}
}

func TestSubmitWithoutTokens(t *testing.T) {
	s, r := newTestServer(t, Config{Tokens: 1})

	resp, _ := serve(r, submitRequest(t, "scan.dcm", dicomImage(), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, s.Balance("client-1"))

	resp, payload := serve(r, submitRequest(t, "scan.dcm", dicomImage(), nil))
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	assert.Equal(t, "insufficient_tokens", payload["code"])
}

func TestStatusErrors(t *testing.T) {
	_, r := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, devicePath+"/5f0c6c9e-3f44-4a77-8d2b-7a1f0f7f2a10", nil)
	authorize(req)
	resp, _ := serve(r, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	req = httptest.NewRequest(http.MethodGet, devicePath+"/not-a-uuid", nil)
	authorize(req)
	resp, payload := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "request_id", payload["field"])

	resp, _ = serve(r, httptest.NewRequest(http.MethodGet, devicePath+"/not-a-uuid", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t, Config{})
	resp, payload := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/utils/health-check/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, payload["status"])
}

func TestUnknownReport(t *testing.T) {
	_, r := newTestServer(t, Config{})
	resp, _ := serve(r, httptest.NewRequest(http.MethodGet, "/reports/nope.pdf", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRateLimitedSubmissions(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	_, r := newTestServer(t, Config{
		RateLimit: &middleware.RateLimitConfig{
			Limiter: middleware.NewRateLimiter(func() time.Time { return now }),
			Rules: map[middleware.RateGroup]middleware.RateLimitRule{
				middleware.RateGroupDefault: {Rate: 1, Burst: 1},
				middleware.RateGroupPolling: {Rate: 10, Burst: 10},
			},
		},
	})

	resp, payload := serve(r, submitRequest(t, "pano.dcm", dicomImage(), nil))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	requestID := payload["data"].(map[string]any)["request_id"].(string)

	resp, payload = serve(r, submitRequest(t, "pano.dcm", dicomImage(), nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate_limited", payload["code"])
	assert.Equal(t, "1", resp.Header().Get("Retry-After"))

	assert.Equal(t, "PENDING", poll(t, r, requestID)["analysis_status"])
}
