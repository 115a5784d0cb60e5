package client

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{401, ErrorClassAuth},
		{403, ErrorClassAuth},
		{404, ErrorClassNotFound},
		{429, ErrorClassRateLimit},
		{400, ErrorClassClient},
		{422, ErrorClassClient},
		{500, ErrorClassServer},
		{502, ErrorClassServer},
		{503, ErrorClassServer},
		{504, ErrorClassServer},
		{302, ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassAuth, false},
		{ErrorClassNotFound, false},
		{ErrorClassClient, false},
		{ErrorClassUnexpected, false},
		{ErrorClassRateLimit, true},
		{ErrorClassServer, true},
		{ErrorClassNetwork, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	withBody := &APIError{
		StatusCode: 401,
		ErrorClass: ErrorClassAuth,
		Message:    "401 Unauthorized",
		Body:       `{"message": "bad signature"}`,
	}
	want := `crusoe auth error (status 401): 401 Unauthorized: {"message": "bad signature"}`
	if withBody.Error() != want {
		t.Errorf("Error() = %q, want %q", withBody.Error(), want)
	}

	withoutBody := &APIError{
		StatusCode: 503,
		ErrorClass: ErrorClassServer,
		Message:    "503 Service Unavailable",
	}
	want = "crusoe server error (status 503): 503 Service Unavailable"
	if withoutBody.Error() != want {
		t.Errorf("Error() = %q, want %q", withoutBody.Error(), want)
	}
}

func TestClassOf(t *testing.T) {
	apiErr := &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}
	if got := classOf(apiErr); got != ErrorClassRateLimit {
		t.Errorf("classOf(APIError) = %q, want rate_limit", got)
	}

	wrapped := fmt.Errorf("fetch page: %w", apiErr)
	if got := classOf(wrapped); got != ErrorClassRateLimit {
		t.Errorf("classOf(wrapped APIError) = %q, want rate_limit", got)
	}

	if got := classOf(io.EOF); got != ErrorClassNetwork {
		t.Errorf("classOf(transport error) = %q, want network", got)
	}
}

func TestSentinelsDistinct(t *testing.T) {
	if errors.Is(ErrRetryExhausted, ErrContextCancelled) {
		t.Error("Sentinel errors must be distinct")
	}
}
