package fakeapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bridgeiq-client/internal/device"
	"bridgeiq-client/internal/report"
	"bridgeiq-client/internal/shared/server/middleware"
	"bridgeiq-client/internal/shared/server/respond"
)

const maxImageBytes = 64 << 20

type submissionResponse struct {
	AnalysisID       string `json:"analysis_id"`
	RequestID        string `json:"request_id"`
	RadiographyType  string `json:"radiography_type"`
	TokenCost        int    `json:"token_cost"`
	PatientID        string `json:"patient_id,omitempty"`
	CheckAnalysisURL string `json:"check_analysis_url"`
}

type statusResponse struct {
	AnalysisID      string `json:"analysis_id"`
	RequestID       string `json:"request_id"`
	RadiographyType string `json:"radiography_type"`
	PatientID       string `json:"patient_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	AnalysisStatus  string `json:"analysis_status"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ReportID        string `json:"report_id,omitempty"`
	ReportStatus    string `json:"report_status,omitempty"`
	PDFStatus       string `json:"pdf_status,omitempty"`
	ReportPDFLink   string `json:"report_pdf_link,omitempty"`
}

func (s *Server) submit(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		respond.FieldError(c, http.StatusBadRequest, "image", "image file is required")
		return
	}
	if fileHeader.Size > maxImageBytes {
		respond.FieldError(c, http.StatusBadRequest, "image", "image exceeds 64MB")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.FieldError(c, http.StatusBadRequest, "image", "image could not be read")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil || len(image) == 0 {
		respond.FieldError(c, http.StatusBadRequest, "image", "image is empty")
		return
	}

	radiography := strings.TrimSpace(c.PostForm("radiography_type"))
	if radiography == "" {
		radiography = defaultRadiography
	}
	if _, ok := radiographyTypes[radiography]; !ok {
		respond.FieldError(c, http.StatusBadRequest, "radiography_type", "unsupported radiography type: "+radiography)
		return
	}
	reportType := strings.TrimSpace(c.PostForm("report_type"))
	if reportType == "" {
		reportType = "standard"
	}
	if _, ok := reportTypes[reportType]; !ok {
		respond.FieldError(c, http.StatusBadRequest, "report_type", "unsupported report type: "+reportType)
		return
	}

	clientID := c.GetHeader("client-id")
	now := s.cfg.Now().UTC()
	a := &analysis{
		AnalysisID:      uuid.NewString(),
		RequestID:       uuid.NewString(),
		ClientID:        clientID,
		DevicePath:      middleware.DevicePathFromContext(c),
		RadiographyType: radiography,
		ReportType:      reportType,
		PatientID:       c.PostForm("patient_id"),
		Status:          "PENDING",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !device.IsDICOM(image) && !device.HasDICOMExtension(fileHeader.Filename) {
		a.Status = "FAILED"
		a.ErrorMessage = "image is not a supported radiograph"
	}

	s.mu.Lock()
	balance := s.balanceLocked(clientID)
	if balance >= 0 && balance < s.cfg.TokenCost {
		s.mu.Unlock()
		respond.Error(c, http.StatusPaymentRequired, "insufficient_tokens", "Insufficient tokens to process analysis", gin.H{
			"balance":    balance,
			"token_cost": s.cfg.TokenCost,
		})
		return
	}
	if balance >= 0 {
		s.tokens[clientID] = balance - s.cfg.TokenCost
	}
	s.analyses[a.RequestID] = a
	s.mu.Unlock()

	c.Set("analysisRequestId", a.RequestID)
	respond.OK(c, submissionResponse{
		AnalysisID:       a.AnalysisID,
		RequestID:        a.RequestID,
		RadiographyType:  a.RadiographyType,
		TokenCost:        s.cfg.TokenCost,
		PatientID:        a.PatientID,
		CheckAnalysisURL: c.Request.URL.Path + "/" + a.RequestID,
	})
}

func (s *Server) status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.FieldError(c, http.StatusBadRequest, "request_id", "request id must be a uuid")
		return
	}
	c.Set("analysisRequestId", id.String())

	s.mu.Lock()
	a, ok := s.analyses[id.String()]
	if !ok || a.DevicePath != middleware.DevicePathFromContext(c) {
		s.mu.Unlock()
		respond.Error(c, http.StatusNotFound, "not_found", "Analysis request not found", nil)
		return
	}
	before := a.Status
	s.advance(a)
	snapshot := *a
	s.mu.Unlock()

	if before != snapshot.Status {
		c.Set("statusTransition", before+"->"+snapshot.Status)
	}
	respond.OK(c, toStatusResponse(snapshot))
}

// advance moves a non-terminal analysis one step along
// PENDING -> PROCESSING -> COMPLETED. The caller holds s.mu.
func (s *Server) advance(a *analysis) {
	if a.Status == "FAILED" || a.Status == "COMPLETED" {
		return
	}
	a.Polls++
	switch {
	case a.Polls > s.cfg.PollsToComplete:
		a.Status = "COMPLETED"
		a.ReportID = uuid.NewString()
	case a.Polls > 1:
		a.Status = "PROCESSING"
	}
	a.UpdatedAt = s.cfg.Now().UTC()
}

func toStatusResponse(a analysis) statusResponse {
	resp := statusResponse{
		AnalysisID:      a.AnalysisID,
		RequestID:       a.RequestID,
		RadiographyType: a.RadiographyType,
		PatientID:       a.PatientID,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339Nano),
		AnalysisStatus:  a.Status,
		ErrorMessage:    a.ErrorMessage,
	}
	if a.ReportID != "" {
		resp.ReportID = a.ReportID
		resp.ReportStatus = "COMPLETED"
		resp.PDFStatus = "COMPLETED"
		resp.ReportPDFLink = "/reports/" + reportFile(a.ReportID)
	}
	return resp
}

func (s *Server) report(c *gin.Context) {
	reportID := reportIDFromFile(c.Param("file"))

	s.mu.Lock()
	var found *analysis
	for _, a := range s.analyses {
		if a.ReportID != "" && a.ReportID == reportID {
			copied := *a
			found = &copied
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		respond.Error(c, http.StatusNotFound, "not_found", "Report not found", nil)
		return
	}
	c.Set("analysisRequestId", found.RequestID)
	pdf := report.Placeholder(
		"BridgeIQ analysis report",
		"Request: "+found.RequestID,
		"Radiography: "+found.RadiographyType,
		"Report type: "+found.ReportType,
		"Generated: "+found.UpdatedAt.Format(time.RFC3339),
	)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
