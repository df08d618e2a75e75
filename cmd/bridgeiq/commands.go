package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"bridgeiq-client/internal/bridgeiq"
	"bridgeiq-client/internal/device"
	"bridgeiq-client/internal/ledger"
	"bridgeiq-client/internal/report"
	"bridgeiq-client/internal/shared/telemetry"
	"bridgeiq-client/internal/shared/util"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"health":   cmdHealth,
	"submit":   cmdSubmit,
	"status":   cmdStatus,
	"wait":     cmdWait,
	"download": cmdDownload,
	"run":      cmdRun,
	"history":  cmdHistory,
}

func cmdHealth(ctx context.Context, a *app, args []string) error {
	health, err := a.client.HealthCheck(ctx)
	if err != nil {
		return err
	}
	switch {
	case health.EndpointMissing:
		fmt.Fprintln(a.stdout, "healthy (health endpoint not found, assuming service is up)")
	case health.Healthy:
		fmt.Fprintln(a.stdout, "healthy")
	default:
		return fmt.Errorf("service unhealthy (status %d)", health.StatusCode)
	}
	return nil
}

type submitFlags struct {
	opts bridgeiq.SubmitOptions
}

func parseSubmitFlags(name string, a *app, args []string) (*submitFlags, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	sf := &submitFlags{}
	fs.StringVar(&sf.opts.RadiographyType, "type", "", "radiography type, e.g. panoramic_adult or bitewing")
	fs.StringVar(&sf.opts.ReportType, "report-type", bridgeiq.DefaultReportType, "report type")
	fs.StringVar(&sf.opts.PatientID, "patient-id", "", "patient identifier")
	fs.StringVar(&sf.opts.PatientName, "patient-name", "", "patient name")
	fs.StringVar(&sf.opts.PatientGender, "patient-gender", "", "patient gender")
	fs.StringVar(&sf.opts.PatientDOB, "patient-dob", "", "patient date of birth (YYYY-MM-DD)")
	fs.StringVar(&sf.opts.CallbackURL, "callback", "", "URL notified when the analysis finishes")
	if err := fs.Parse(args); err != nil {
		return nil, nil, errUsage
	}
	if fs.NArg() != 1 {
		return nil, nil, fmt.Errorf("%s needs exactly one image path\n%w", name, errUsage)
	}
	return sf, fs.Args(), nil
}

func cmdSubmit(ctx context.Context, a *app, args []string) error {
	sf, rest, err := parseSubmitFlags("submit", a, args)
	if err != nil {
		return err
	}
	req, err := a.submit(ctx, rest[0], sf.opts)
	if err != nil {
		return err
	}
	return a.printJSON(req)
}

func (a *app) submit(ctx context.Context, path string, opts bridgeiq.SubmitOptions) (bridgeiq.AnalysisRequest, error) {
	warnIfNotDICOM(a.stderr, path)
	req, err := a.client.SubmitFile(ctx, path, opts)
	if err != nil {
		return bridgeiq.AnalysisRequest{}, err
	}
	reportType := opts.ReportType
	if reportType == "" {
		reportType = bridgeiq.DefaultReportType
	}
	a.record(ctx, ledger.Submission{
		RequestID:  req.RequestID,
		OwnerKey:   a.owner,
		DevicePath: a.cfg.DevicePath,
		FileName:   path,
		PatientID:  opts.PatientID,
		ReportType: reportType,
		Status:     string(bridgeiq.StatePending),
	})
	return req, nil
}

// warnIfNotDICOM prints a warning for files that do not look like radiographs.
func warnIfNotDICOM(w io.Writer, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	head := make([]byte, 132)
	n, _ := io.ReadFull(f, head)
	if !device.IsDICOM(head[:n]) && !device.HasDICOMExtension(path) {
		fmt.Fprintf(w, "warning: %s does not look like a DICOM or RVG image\n", path)
	}
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("status needs a request id\n%w", errUsage)
	}
	status, err := a.client.CheckStatus(ctx, args[0])
	if err != nil {
		return err
	}
	a.update(ctx, status, "")
	return a.printJSON(status)
}

func cmdWait(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	timeout := fs.Duration("timeout", a.cfg.WaitTimeout, "how long to wait for a result")
	interval := fs.Duration("interval", a.cfg.PollInterval, "delay between status checks")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("wait needs a request id\n%w", errUsage)
	}

	status, err := a.client.AwaitCompletion(ctx, fs.Arg(0), *timeout, *interval)
	if err != nil {
		return err
	}
	a.update(ctx, status, "")
	if err := a.printJSON(status); err != nil {
		return err
	}
	if status.IsFailed() {
		return fmt.Errorf("analysis failed: %s", status.ErrorMessage)
	}
	return nil
}

func cmdDownload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	inspect := fs.Bool("inspect", false, "print a summary of the downloaded PDF")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("download needs a request id\n%w", errUsage)
	}

	status, err := a.client.CheckStatus(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if !status.HasPDF() {
		return fmt.Errorf("report for %s is not ready (analysis %s, pdf %s)", status.RequestID, status.Status, pdfState(status))
	}
	return a.download(ctx, status, *inspect)
}

func (a *app) download(ctx context.Context, status bridgeiq.AnalysisStatus, inspect bool) error {
	key, err := util.ReportFileName(status.RequestID)
	if err != nil {
		return err
	}
	n, err := a.client.DownloadReport(ctx, status.ReportPDFLink, key)
	if err != nil {
		return err
	}
	a.update(ctx, status, key)
	fmt.Fprintf(a.stdout, "saved %s (%d bytes)\n", key, n)

	if !inspect {
		return nil
	}
	summary, err := report.Inspect(ctx, a.store, key)
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

func pdfState(status bridgeiq.AnalysisStatus) string {
	if status.PDFStatus == "" {
		return "not started"
	}
	return string(status.PDFStatus)
}

func cmdRun(ctx context.Context, a *app, args []string) error {
	sf, rest, err := parseSubmitFlags("run", a, args)
	if err != nil {
		return err
	}

	healthy, err := a.client.IsHealthy(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("service is not healthy, not submitting")
	}

	req, err := a.submit(ctx, rest[0], sf.opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "submitted %s (token cost %d)\n", req.RequestID, req.TokenCost)

	started := time.Now()
	status, err := a.client.AwaitCompletion(ctx, req.RequestID, a.cfg.WaitTimeout, a.cfg.PollInterval)
	if err != nil {
		if errors.Is(err, bridgeiq.ErrTimeout) {
			fmt.Fprintf(a.stderr, "still running; check later with: bridgeiq wait %s\n", req.RequestID)
		}
		return err
	}
	a.update(ctx, status, "")
	fmt.Fprintf(a.stdout, "analysis %s after %s\n", status.Status, time.Since(started).Round(time.Second))

	if status.IsFailed() {
		return fmt.Errorf("analysis failed: %s", status.ErrorMessage)
	}
	if !status.HasPDF() {
		fmt.Fprintf(a.stdout, "no PDF report yet (pdf %s); fetch it later with: bridgeiq download %s\n", pdfState(status), req.RequestID)
		return nil
	}
	return a.download(ctx, status, true)
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	limit := fs.Int("limit", 20, "number of submissions to list")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	items, err := a.ledger.List(ctx, a.owner, *limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.stdout, "no submissions recorded")
		return nil
	}
	for _, s := range items {
		fmt.Fprintf(a.stdout, "%s  %-16s  %s  %s\n", s.CreatedAt.Format(time.RFC3339), s.Status, s.RequestID, s.FileName)
	}
	return nil
}

// record stores a submission; history is best effort and never fails a command.
func (a *app) record(ctx context.Context, s ledger.Submission) {
	if s.RequestID == "" {
		return
	}
	if err := a.ledger.Record(ctx, s); err != nil {
		telemetry.Warn("ledger.record_failed", map[string]any{"request_id": s.RequestID, "error": err.Error()})
	}
}

func (a *app) update(ctx context.Context, status bridgeiq.AnalysisStatus, reportPath string) {
	id, err := uuid.Parse(status.RequestID)
	if err != nil {
		return
	}
	err = a.ledger.UpdateStatus(ctx, id.String(), ledger.Update{
		Status:       string(status.Status),
		ReportPath:   reportPath,
		ErrorMessage: status.ErrorMessage,
	})
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		telemetry.Warn("ledger.update_failed", map[string]any{"request_id": status.RequestID, "error": err.Error()})
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
