package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/bridgeiq"
	"bridgeiq-client/internal/fakeapi"
	"bridgeiq-client/internal/shared/config"
	"bridgeiq-client/internal/shared/server/middleware"
)

func setupCLI(t *testing.T, secret string) (config.Config, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	api := fakeapi.New(fakeapi.Config{
		Credentials:     middleware.Credentials{"client-1": "s3cret"},
		PollsToComplete: 1,
	})
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	cfg := config.Config{
		ClientID:        "client-1",
		ClientSecret:    secret,
		DevicePath:      "clinic-3",
		BaseURL:         srv.URL,
		Environment:     bridgeiq.EnvironmentTesting,
		Timeout:         5 * time.Second,
		MaxRetries:      1,
		BackoffFactor:   time.Millisecond,
		WaitTimeout:     5 * time.Second,
		PollInterval:    10 * time.Millisecond,
		OutputDir:       outDir,
		ObjectStoreType: "local",
		LogLevel:        "error",
	}
	prev := loadConfig
	loadConfig = func() (config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = prev })
	return cfg, outDir
}

func writeImage(t *testing.T, name string, dicom bool) string {
	t.Helper()
	data := make([]byte, 256)
	if dicom {
		copy(data[128:], "DICM")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestHealthCommand(t *testing.T) {
	setupCLI(t, "s3cret")
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), []string{"health"}, nil, &stdout, &stderr); err != nil {
		t.Fatalf("health: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "healthy" {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestRunCommandDownloadsReport(t *testing.T) {
	_, outDir := setupCLI(t, "s3cret")
	image := writeImage(t, "pano.dcm", true)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-metrics", "run", "-patient-id", "P-1", image}, nil, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "submitted ") || !strings.Contains(out, "analysis COMPLETED") {
		t.Fatalf("unexpected output: %s", out)
	}
	matches, _ := filepath.Glob(filepath.Join(outDir, "bridgeiq_report_*.pdf"))
	if len(matches) != 1 {
		t.Fatalf("expected one report in %s, got %v", outDir, matches)
	}
	if !strings.Contains(out, `"pages": 1`) {
		t.Fatalf("expected report summary in output: %s", out)
	}
	if !strings.Contains(stderr.String(), "bridgeiq_submissions_total") {
		t.Fatalf("expected metrics on stderr")
	}
}

func TestSubmitWarnsForNonDICOM(t *testing.T) {
	setupCLI(t, "s3cret")
	image := writeImage(t, "photo.png", false)
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), []string{"submit", image}, nil, &stdout, &stderr); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(stderr.String(), "does not look like a DICOM") {
		t.Fatalf("expected warning, got %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), `"request_id"`) {
		t.Fatalf("expected receipt json, got %q", stdout.String())
	}
}

func TestSecretPromptWhenMissing(t *testing.T) {
	setupCLI(t, "")
	prevRead, prevTerm := readPassword, isTerminal
	readPassword = func(int) ([]byte, error) { return []byte("s3cret\n"), nil }
	isTerminal = func(int) bool { return true }
	t.Cleanup(func() { readPassword, isTerminal = prevRead, prevTerm })

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	defer stdin.Close()

	var stdout, stderr bytes.Buffer
	err = run(context.Background(), []string{"status", "5f0c6c9e-3f44-4a77-8d2b-7a1f0f7f2a10"}, stdin, &stdout, &stderr)
	if !errors.Is(err, bridgeiq.ErrResourceNotFound) {
		t.Fatalf("expected not found with prompted secret, got %v", err)
	}
	if !strings.Contains(stderr.String(), "Client secret:") {
		t.Fatalf("expected prompt on stderr")
	}
}

func TestWrongSecretIsAuthenticationError(t *testing.T) {
	setupCLI(t, "nope")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"status", "5f0c6c9e-3f44-4a77-8d2b-7a1f0f7f2a10"}, nil, &stdout, &stderr)
	if !errors.Is(err, bridgeiq.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	setupCLI(t, "s3cret")
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"history"}, nil, &stdout, &stderr); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout.String(), "no submissions recorded") {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		nil,
		{"bogus"},
		{"status"},
		{"submit"},
	}
	for _, args := range tests {
		setupCLI(t, "s3cret")
		var stdout, stderr bytes.Buffer
		err := run(context.Background(), args, nil, &stdout, &stderr)
		if !errors.Is(err, errUsage) {
			t.Fatalf("args %v: expected usage error, got %v", args, err)
		}
	}
}
