// Package config holds the forwarder configuration. Environment variables
// are read in one place (FromEnv) and the resulting value is injected into
// the signer, client, and forwarder; no component reads ambient process
// state. Validation runs eagerly so a missing credential fails fast with a
// descriptive error instead of surfacing as an opaque authentication
// failure mid-fetch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvAccessKeyID    = "CRUSOE_ACCESS_KEY_ID"
	EnvSecretKey      = "CRUSOE_SECRET_ACCESS_KEY"
	EnvBaseURL        = "CRUSOE_BASE_URL"
	EnvOrganizationID = "CRUSOE_ORG_ID"

	EnvHECURL     = "SPLUNK_HEC_URL"
	EnvHECToken   = "SPLUNK_HEC_TOKEN"
	EnvIndex      = "SPLUNK_INDEX"
	EnvSourceType = "SPLUNK_SOURCETYPE"
	EnvSource     = "SPLUNK_SOURCE"
	EnvVerifySSL  = "SPLUNK_VERIFY_SSL"

	EnvBatchSize  = "BATCH_SIZE"
	EnvTimeout    = "REQUEST_TIMEOUT"
	EnvMaxRetries = "MAX_RETRIES"
)

// DefaultBaseURL is the production Crusoe API endpoint.
const DefaultBaseURL = "https://api.crusoecloud.com/v1alpha5"

// CrusoeConfig configures the Crusoe API side.
type CrusoeConfig struct {
	AccessKeyID    string
	SecretKey      string
	BaseURL        string
	OrganizationID string
}

// SplunkConfig configures the HEC collector side.
type SplunkConfig struct {
	HECURL     string
	HECToken   string
	Index      string
	SourceType string
	Source     string
	VerifySSL  bool
}

// AppConfig is the full forwarder configuration.
type AppConfig struct {
	Crusoe CrusoeConfig
	Splunk SplunkConfig

	// BatchSize is both the audit-log page size and the collector batch
	// size.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the total attempt bound for transient failures.
	MaxRetries int
}

// FromEnv builds the configuration from environment variables, applying
// defaults for optional settings. Call Validate before use.
func FromEnv() AppConfig {
	return AppConfig{
		Crusoe: CrusoeConfig{
			AccessKeyID:    os.Getenv(EnvAccessKeyID),
			SecretKey:      os.Getenv(EnvSecretKey),
			BaseURL:        getEnv(EnvBaseURL, DefaultBaseURL),
			OrganizationID: os.Getenv(EnvOrganizationID),
		},
		Splunk: SplunkConfig{
			HECURL:     os.Getenv(EnvHECURL),
			HECToken:   os.Getenv(EnvHECToken),
			Index:      os.Getenv(EnvIndex),
			SourceType: getEnv(EnvSourceType, "crusoe:audit"),
			Source:     getEnv(EnvSource, "crusoe_api"),
			VerifySSL:  strings.ToLower(getEnv(EnvVerifySSL, "true")) == "true",
		},
		BatchSize:  getEnvInt(EnvBatchSize, 100),
		Timeout:    time.Duration(getEnvInt(EnvTimeout, 30)) * time.Second,
		MaxRetries: getEnvInt(EnvMaxRetries, 3),
	}
}

// Validate checks that all required settings are present.
func (c AppConfig) Validate() error {
	if c.Crusoe.AccessKeyID == "" {
		return fmt.Errorf("%s environment variable is required", EnvAccessKeyID)
	}
	if c.Crusoe.SecretKey == "" {
		return fmt.Errorf("%s environment variable is required", EnvSecretKey)
	}
	if c.Crusoe.OrganizationID == "" {
		return fmt.Errorf("%s environment variable is required", EnvOrganizationID)
	}
	if c.Splunk.HECURL == "" {
		return fmt.Errorf("%s environment variable is required", EnvHECURL)
	}
	if c.Splunk.HECToken == "" {
		return fmt.Errorf("%s environment variable is required", EnvHECToken)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive (got %d)", c.BatchSize)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive (got %d)", c.MaxRetries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
