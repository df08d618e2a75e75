// Package bridgeiq is a client for the BridgeIQ radiography analysis API.
//
// A Client submits images, polls analysis status until the job reaches a
// terminal state, and downloads generated reports. AsyncClient exposes the
// same operations as cancellable tasks. Failures are returned as *Error values
// whose Kind can be matched with errors.Is against the Err* sentinels.
package bridgeiq

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

const (
	DefaultTimeout       = 120 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 500 * time.Millisecond
	DefaultReportType    = "standard"

	DefaultWaitTimeout  = 300 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// Environment selects the BridgeIQ deployment a client talks to.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentTesting    Environment = "testing"
)

// ParseEnvironment parses a case-insensitive environment name.
func ParseEnvironment(raw string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(raw))) {
	case EnvironmentProduction:
		return EnvironmentProduction, nil
	case EnvironmentTesting:
		return EnvironmentTesting, nil
	default:
		return "", fmt.Errorf("invalid environment: %s. Valid values are: %s, %s", raw, EnvironmentProduction, EnvironmentTesting)
	}
}

func (e Environment) String() string { return string(e) }

// Config holds the settings for one device/credential pair.
type Config struct {
	ClientID     string
	ClientSecret string
	DevicePath   string
	BaseURL      string
	Environment  Environment

	// Timeout bounds every HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxRetries caps transport retries. Zero means DefaultMaxRetries and a
	// negative value disables retries.
	MaxRetries int
	// BackoffFactor is the delay before the first retry; it doubles per attempt.
	BackoffFactor time.Duration

	// UserAgent overrides the generated device User-Agent.
	UserAgent string
	// HTTPClient replaces the default client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}
	if strings.TrimSpace(c.DevicePath) == "" {
		missing = append(missing, "device path")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bridgeiq config: %s required", strings.Join(missing, ", "))
	}
	if _, err := parseBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("bridgeiq config: %w", err)
	}
	if c.Environment != "" {
		if _, err := ParseEnvironment(string(c.Environment)); err != nil {
			return fmt.Errorf("bridgeiq config: %w", err)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Environment == "" {
		c.Environment = EnvironmentProduction
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.DevicePath = strings.Trim(strings.TrimSpace(c.DevicePath), "/")
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return nil, errors.New("base url must include a host")
	}
	return parsed, nil
}
