package bridgeiq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisStatusPredicates(t *testing.T) {
	tests := []struct {
		status     State
		completed  bool
		failed     bool
		processing bool
	}{
		{StatePending, false, false, true},
		{StateProcessing, false, false, true},
		{StateCompleted, true, false, false},
		{StateManualCompleted, true, false, false},
		{StateFailed, false, true, false},
	}
	for _, tt := range tests {
		s := AnalysisStatus{Status: tt.status}
		assert.Equal(t, tt.completed, s.IsCompleted(), tt.status)
		assert.Equal(t, tt.failed, s.IsFailed(), tt.status)
		assert.Equal(t, tt.processing, s.IsProcessing(), tt.status)
		assert.Equal(t, tt.completed || tt.failed, s.IsTerminal(), tt.status)
	}
}

func TestHasPDF(t *testing.T) {
	tests := []struct {
		name   string
		link   string
		status ArtifactState
		want   bool
	}{
		{name: "ready", link: "/reports/r.pdf", status: ArtifactCompleted, want: true},
		{name: "link but rendering", link: "/reports/r.pdf", status: ArtifactProcessing},
		{name: "completed without link", status: ArtifactCompleted},
		{name: "neither"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := AnalysisStatus{ReportPDFLink: tt.link, PDFStatus: tt.status}
			assert.Equal(t, tt.want, s.HasPDF())
		})
	}
	assert.True(t, AnalysisStatus{ReportID: "rep-1"}.HasReport())
	assert.False(t, AnalysisStatus{}.HasReport())
}

func TestStatusDecoding(t *testing.T) {
	raw := `{"analysis_id":"a-1","request_id":"` + testRequestID + `","analysis_status":"MANUAL_COMPLETED",
		"pdf_status":"COMPLETED","report_pdf_link":"/r.pdf","created_at":"2026-05-01T09:00:00.123456"}`
	var s AnalysisStatus
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, StateManualCompleted, s.Status)
	assert.True(t, s.HasPDF())

	created, err := s.Created()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.May, 1, 9, 0, 0, 123456000, time.UTC), created)

	_, err = s.Updated()
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"analysis_status":"DONE"}`), &s)
	assert.Error(t, err)
	err = json.Unmarshal([]byte(`{"analysis_status":"PENDING","pdf_status":"LOST"}`), &s)
	assert.Error(t, err)
}

func TestAnalysisRequestValidate(t *testing.T) {
	ok := AnalysisRequest{RequestID: testRequestID, TokenCost: 2}
	require.NoError(t, ok.validate())
	id, err := ok.UUID()
	require.NoError(t, err)
	assert.Equal(t, testRequestID, id.String())

	assert.Error(t, AnalysisRequest{RequestID: "nope"}.validate())
	assert.Error(t, AnalysisRequest{RequestID: testRequestID, TokenCost: -1}.validate())
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment(" Testing ")
	require.NoError(t, err)
	assert.Equal(t, EnvironmentTesting, env)

	_, err = ParseEnvironment("staging")
	require.Error(t, err)
	assert.Equal(t, "invalid environment: staging. Valid values are: production, testing", err.Error())
}

func TestConfigValidate(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id, client secret, device path, base url required")

	cfg := testConfig("ftp://example.com")
	assert.Error(t, cfg.Validate())

	cfg = testConfig("https://api.example.com/")
	cfg.Environment = "staging"
	assert.Error(t, cfg.Validate())

	cfg.Environment = EnvironmentTesting
	require.NoError(t, cfg.Validate())

	withDefaults := cfg.withDefaults()
	assert.Equal(t, "https://api.example.com", withDefaults.BaseURL)
	assert.Equal(t, DefaultTimeout, withDefaults.Timeout)
	assert.Equal(t, DefaultMaxRetries, withDefaults.MaxRetries)

	cfg.MaxRetries = -1
	assert.Equal(t, 0, cfg.withDefaults().MaxRetries)
}
