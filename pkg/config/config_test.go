package config

import (
	"strings"
	"testing"
	"time"
)

// setRequiredEnv populates the minimal required variables.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAccessKeyID, "n4Cm1VYRTGeipLsQFG1jqg")
	t.Setenv(EnvSecretKey, "VQSKaxlVqAuB0yD9Sab6lA")
	t.Setenv(EnvOrganizationID, "c594a031-5041-45ff-a72c-ba127c9884d1")
	t.Setenv(EnvHECURL, "https://splunk.example.com:8088")
	t.Setenv(EnvHECToken, "hec-token")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := FromEnv()

	if cfg.Crusoe.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Crusoe.BaseURL, DefaultBaseURL)
	}
	if cfg.Splunk.SourceType != "crusoe:audit" {
		t.Errorf("SourceType = %q, want crusoe:audit", cfg.Splunk.SourceType)
	}
	if cfg.Splunk.Source != "crusoe_api" {
		t.Errorf("Source = %q, want crusoe_api", cfg.Splunk.Source)
	}
	if !cfg.Splunk.VerifySSL {
		t.Error("VerifySSL should default to true")
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(EnvBaseURL, "http://localhost:9999/v1alpha5")
	t.Setenv(EnvVerifySSL, "false")
	t.Setenv(EnvBatchSize, "50")
	t.Setenv(EnvTimeout, "10")
	t.Setenv(EnvMaxRetries, "5")

	cfg := FromEnv()

	if cfg.Crusoe.BaseURL != "http://localhost:9999/v1alpha5" {
		t.Errorf("BaseURL = %q", cfg.Crusoe.BaseURL)
	}
	if cfg.Splunk.VerifySSL {
		t.Error("VerifySSL = true, want false")
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestValidate_RequiredSettings(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantVar string
	}{
		{"missing access key", EnvAccessKeyID, EnvAccessKeyID},
		{"missing secret", EnvSecretKey, EnvSecretKey},
		{"missing org id", EnvOrganizationID, EnvOrganizationID},
		{"missing hec url", EnvHECURL, EnvHECURL},
		{"missing hec token", EnvHECToken, EnvHECToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			err := FromEnv().Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			// The error must name the missing variable so the operator can
			// fix it without digging.
			if !strings.Contains(err.Error(), tt.wantVar) {
				t.Errorf("Error %q does not name %s", err.Error(), tt.wantVar)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	setRequiredEnv(t)

	if err := FromEnv().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_BadNumbers(t *testing.T) {
	setRequiredEnv(t)

	cfg := FromEnv()
	cfg.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero batch size")
	}

	cfg = FromEnv()
	cfg.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative max retries")
	}
}
