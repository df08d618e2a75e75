package bridgeiq

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of an analysis.
type State string

const (
	StatePending         State = "PENDING"
	StateProcessing      State = "PROCESSING"
	StateCompleted       State = "COMPLETED"
	StateManualCompleted State = "MANUAL_COMPLETED"
	StateFailed          State = "FAILED"
)

func (s *State) UnmarshalText(text []byte) error {
	switch v := State(text); v {
	case StatePending, StateProcessing, StateCompleted, StateManualCompleted, StateFailed:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown analysis status %q", string(text))
	}
}

// ArtifactState is the generation state of a report or its PDF rendering.
type ArtifactState string

const (
	ArtifactPending    ArtifactState = "PENDING"
	ArtifactProcessing ArtifactState = "PROCESSING"
	ArtifactCompleted  ArtifactState = "COMPLETED"
	ArtifactFailed     ArtifactState = "FAILED"
)

func (s *ArtifactState) UnmarshalText(text []byte) error {
	switch v := ArtifactState(text); v {
	case "", ArtifactPending, ArtifactProcessing, ArtifactCompleted, ArtifactFailed:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown artifact status %q", string(text))
	}
}

// AnalysisRequest is the receipt returned by a successful submission.
type AnalysisRequest struct {
	AnalysisID       string `json:"analysis_id"`
	RequestID        string `json:"request_id"`
	RadiographyType  string `json:"radiography_type"`
	TokenCost        int    `json:"token_cost"`
	PatientID        string `json:"patient_id,omitempty"`
	CheckAnalysisURL string `json:"check_analysis_url"`
}

// UUID returns the parsed request id.
func (r AnalysisRequest) UUID() (uuid.UUID, error) {
	return uuid.Parse(r.RequestID)
}

func (r AnalysisRequest) validate() error {
	if _, err := uuid.Parse(r.RequestID); err != nil {
		return fmt.Errorf("request_id %q is not a uuid", r.RequestID)
	}
	if r.TokenCost < 0 {
		return fmt.Errorf("token_cost %d is negative", r.TokenCost)
	}
	return nil
}

// AnalysisStatus is one snapshot of an analysis, re-fetched on every poll.
type AnalysisStatus struct {
	AnalysisID      string        `json:"analysis_id"`
	RequestID       string        `json:"request_id"`
	RadiographyType string        `json:"radiography_type"`
	PatientID       string        `json:"patient_id,omitempty"`
	CreatedAt       string        `json:"created_at"`
	UpdatedAt       string        `json:"updated_at"`
	Status          State         `json:"analysis_status"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	ReportID        string        `json:"report_id,omitempty"`
	ReportStatus    ArtifactState `json:"report_status,omitempty"`
	PDFStatus       ArtifactState `json:"pdf_status,omitempty"`
	ReportPDFLink   string        `json:"report_pdf_link,omitempty"`
	ReportError     string        `json:"report_error,omitempty"`
}

// validate checks the fields every status snapshot carries.
func (s AnalysisStatus) validate() error {
	switch {
	case s.Status == "":
		return fmt.Errorf("analysis_status is missing")
	case s.AnalysisID == "":
		return fmt.Errorf("analysis_id is missing")
	case s.RadiographyType == "":
		return fmt.Errorf("radiography_type is missing")
	}
	if _, err := uuid.Parse(s.RequestID); err != nil {
		return fmt.Errorf("request_id %q is not a uuid", s.RequestID)
	}
	created, err := s.Created()
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	updated, err := s.Updated()
	if err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	if updated.Before(created) {
		return fmt.Errorf("updated_at %s is before created_at %s", s.UpdatedAt, s.CreatedAt)
	}
	return nil
}

func (s AnalysisStatus) IsCompleted() bool {
	return s.Status == StateCompleted || s.Status == StateManualCompleted
}

func (s AnalysisStatus) IsFailed() bool { return s.Status == StateFailed }

func (s AnalysisStatus) IsProcessing() bool {
	return s.Status == StatePending || s.Status == StateProcessing
}

func (s AnalysisStatus) IsTerminal() bool { return s.IsCompleted() || s.IsFailed() }

func (s AnalysisStatus) HasReport() bool { return s.ReportID != "" }

// HasPDF reports whether the PDF report is ready for download.
func (s AnalysisStatus) HasPDF() bool {
	return s.ReportPDFLink != "" && s.PDFStatus == ArtifactCompleted
}

func (s AnalysisStatus) Created() (time.Time, error) { return parseTimestamp(s.CreatedAt) }

func (s AnalysisStatus) Updated() (time.Time, error) { return parseTimestamp(s.UpdatedAt) }

// HealthReport is the outcome of a health probe.
type HealthReport struct {
	Healthy    bool
	StatusCode int
	// EndpointMissing is set when the service answered 404; the service is
	// then assumed healthy.
	EndpointMissing bool
}

// SubmitOptions carries the optional form fields of a submission. Empty
// fields are left out of the request.
type SubmitOptions struct {
	ReportType      string
	RadiographyType string
	PatientID       string
	PatientName     string
	PatientGender   string
	PatientDOB      string
	CallbackURL     string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}
