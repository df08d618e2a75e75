package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// profile mirrors the TOML profile file:
//
//	client_id = "..."
//	client_secret = "..."
//	device_path = "clinic-3"
//	base_url = "https://bridge.example.com"
//	environment = "testing"
//	timeout = "60s"
type profile struct {
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	DevicePath    string `toml:"device_path"`
	BaseURL       string `toml:"base_url"`
	Environment   string `toml:"environment"`
	Timeout       string `toml:"timeout"`
	MaxRetries    *int   `toml:"max_retries"`
	BackoffFactor string `toml:"backoff_factor"`
	WaitTimeout   string `toml:"wait_timeout"`
	PollInterval  string `toml:"poll_interval"`
	OutputDir     string `toml:"output_dir"`
	ObjectStore   string `toml:"object_store"`
	AWSRegion     string `toml:"aws_region"`
	S3Bucket      string `toml:"s3_bucket"`
	S3Prefix      string `toml:"s3_prefix"`
	DatabaseURL   string `toml:"database_url"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
}

// loadProfile parses the profile at path. An empty path or a missing file
// yields an empty profile.
func loadProfile(path string) (profile, error) {
	if strings.TrimSpace(path) == "" {
		return profile{}, nil
	}
	resolved, err := expandPath(path)
	if err != nil {
		return profile{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile{}, nil
		}
		return profile{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return profile{}, fmt.Errorf("read config: %w", err)
	}

	var p profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return profile{}, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	return p, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
