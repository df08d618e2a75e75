package ledger

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a submission is not recorded.
var ErrNotFound = errors.New("submission not found")

// Submission is one analysis request sent from this device.
type Submission struct {
	RequestID    string    `json:"request_id"`
	OwnerKey     string    `json:"-"`
	DevicePath   string    `json:"device_path"`
	FileName     string    `json:"file_name,omitempty"`
	PatientID    string    `json:"patient_id,omitempty"`
	ReportType   string    `json:"report_type"`
	Status       string    `json:"status"`
	ReportPath   string    `json:"report_path,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Update carries the fields that change as a submission progresses.
// Empty ReportPath and ErrorMessage leave the stored values untouched.
type Update struct {
	Status       string
	ReportPath   string
	ErrorMessage string
}
