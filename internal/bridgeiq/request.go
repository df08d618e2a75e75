package bridgeiq

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultImageName = "image.dcm"

	headerClientID     = "client-id"
	headerClientSecret = "client-secret"
)

type submission struct {
	body        []byte
	contentType string
}

// buildSubmission encodes the image and the present option fields as a
// multipart form.
func buildSubmission(image []byte, filename string, opts SubmitOptions) (submission, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = defaultImageName
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", name)
	if err != nil {
		return submission{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return submission{}, fmt.Errorf("write image part: %w", err)
	}

	reportType := strings.TrimSpace(opts.ReportType)
	if reportType == "" {
		reportType = DefaultReportType
	}
	fields := []struct {
		name  string
		value string
	}{
		{"report_type", reportType},
		{"radiography_type", opts.RadiographyType},
		{"patient_id", opts.PatientID},
		{"patient_name", opts.PatientName},
		{"patient_gender", opts.PatientGender},
		{"patient_dob", opts.PatientDOB},
		{"callback_url", opts.CallbackURL},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return submission{}, fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return submission{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return submission{body: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

func (e *engine) headers() http.Header {
	h := make(http.Header, 3)
	h.Set("User-Agent", e.userAgent)
	h.Set(headerClientID, e.cfg.ClientID)
	h.Set(headerClientSecret, e.cfg.ClientSecret)
	return h
}

func (e *engine) requestsURL() string {
	return e.cfg.BaseURL + "/api/v1/webhooks/devices/" + url.PathEscape(e.cfg.DevicePath) + "/requests"
}

func (e *engine) requestURL(requestID string) string {
	return e.requestsURL() + "/" + requestID
}

func (e *engine) healthURL() string {
	return e.cfg.BaseURL + "/api/v1/utils/health-check/"
}

// artifactURL resolves a report link: absolute links are used verbatim,
// relative ones are resolved against the base URL.
func (e *engine) artifactURL(link string) (string, error) {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return "", newValidationError("report_pdf_link", "Validation error: report link is empty")
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return "", &Error{Kind: KindValidation, Field: "report_pdf_link", Message: "Validation error: invalid report link " + trimmed, Err: err}
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base := *e.base
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref.Path = strings.TrimLeft(ref.Path, "/")
	return base.ResolveReference(ref).String(), nil
}

// normalizeRequestID returns the canonical form of a request id.
func normalizeRequestID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", &Error{
			Kind:    KindValidation,
			Field:   "request_id",
			Message: fmt.Sprintf("Validation error: request id %q is not a valid uuid", raw),
			Err:     err,
		}
	}
	return id.String(), nil
}
