package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"bridgeiq-client/internal/bridgeiq"
)

// Config holds process configuration for the BridgeIQ tools.
type Config struct {
	ClientID      string
	ClientSecret  string
	DevicePath    string
	BaseURL       string
	Environment   bridgeiq.Environment
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor time.Duration

	WaitTimeout  time.Duration
	PollInterval time.Duration

	OutputDir       string
	ObjectStoreType string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL string
	LogLevel    string
	LogFile     string
	Port        string
}

// Load reads configuration from an optional TOML profile and the
// environment. Environment variables win over the profile.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	p, err := loadProfile(os.Getenv("BRIDGEIQ_CONFIG"))
	if err != nil {
		return Config{}, err
	}

	envName := getEnv("BRIDGEIQ_ENVIRONMENT", p.Environment)
	if envName == "" {
		envName = string(bridgeiq.EnvironmentProduction)
	}
	env, err := bridgeiq.ParseEnvironment(envName)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ClientID:        getEnv("BRIDGEIQ_CLIENT_ID", p.ClientID),
		ClientSecret:    getEnv("BRIDGEIQ_CLIENT_SECRET", p.ClientSecret),
		DevicePath:      getEnv("BRIDGEIQ_DEVICE_PATH", p.DevicePath),
		BaseURL:         getEnv("BRIDGEIQ_BASE_URL", p.BaseURL),
		Environment:     env,
		OutputDir:       getEnv("BRIDGEIQ_OUTPUT_DIR", firstNonEmpty(p.OutputDir, ".")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", p.ObjectStore)),
		AWSRegion:       getEnv("AWS_REGION", p.AWSRegion),
		S3Bucket:        getEnv("S3_BUCKET", p.S3Bucket),
		S3Prefix:        getEnv("S3_PREFIX", p.S3Prefix),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:     getEnv("DATABASE_URL", p.DatabaseURL),
		LogLevel:        getEnv("BRIDGEIQ_LOG_LEVEL", firstNonEmpty(p.LogLevel, "info")),
		LogFile:         getEnv("BRIDGEIQ_LOG_FILE", p.LogFile),
		Port:            getEnv("PORT", "8080"),
	}

	if cfg.Timeout, err = getDuration("BRIDGEIQ_TIMEOUT", p.Timeout, bridgeiq.DefaultTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BackoffFactor, err = getDuration("BRIDGEIQ_BACKOFF_FACTOR", p.BackoffFactor, bridgeiq.DefaultBackoffFactor); err != nil {
		return Config{}, err
	}
	if cfg.WaitTimeout, err = getDuration("BRIDGEIQ_WAIT_TIMEOUT", p.WaitTimeout, bridgeiq.DefaultWaitTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = getDuration("BRIDGEIQ_POLL_INTERVAL", p.PollInterval, bridgeiq.DefaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries, err = getInt("BRIDGEIQ_MAX_RETRIES", p.MaxRetries, bridgeiq.DefaultMaxRetries); err != nil {
		return Config{}, err
	}

	if cfg.ObjectStoreType == "s3" && cfg.S3Bucket == "" {
		log.Printf("OBJECT_STORE=s3 without S3_BUCKET; reports will fail to upload")
	}
	return cfg, nil
}

// ClientConfig returns the settings the BridgeIQ client needs.
func (c Config) ClientConfig() bridgeiq.Config {
	return bridgeiq.Config{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		DevicePath:    c.DevicePath,
		BaseURL:       c.BaseURL,
		Environment:   c.Environment,
		Timeout:       c.Timeout,
		MaxRetries:    retriesForClient(c.MaxRetries),
		BackoffFactor: c.BackoffFactor,
	}
}

// retriesForClient maps an explicit 0 to the client's "retries disabled".
func retriesForClient(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

// getDuration accepts Go durations ("90s") or plain seconds ("90", "0.5").
func getDuration(key, profileVal string, def time.Duration) (time.Duration, error) {
	raw := getEnv(key, profileVal)
	if raw == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, errConfig(fmt.Sprintf("%s: invalid duration %q", key, raw))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func getInt(key string, profileVal *int, def int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		if profileVal != nil {
			return *profileVal, nil
		}
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errConfig(fmt.Sprintf("%s: invalid non-negative integer %q", key, raw))
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

type errConfig string

func (e errConfig) Error() string { return string(e) }
