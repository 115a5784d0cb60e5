// Package testutil provides test doubles for the Crusoe API and the Splunk
// HEC collector.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/crusoe-tools/audit-forwarder/pkg/signer"
)

// MockCrusoe is a configurable fake of the Crusoe audit-log endpoint. It
// serves offset-paginated pages from an in-memory record store and, when a
// verifier is configured, rejects requests whose HMAC credential does not
// verify against the same canonicalization the real server performs.
type MockCrusoe struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	entries  []map[string]any
	verifier *signer.Signer

	// Tracking
	RequestCount  int
	Offsets       []int
	BadSignatures int
	LastHeader    http.Header
}

// NewMockCrusoe creates a new mock Crusoe API server.
func NewMockCrusoe() *MockCrusoe {
	mock := &MockCrusoe{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastHeader = r.Header.Clone()
		if offset := r.URL.Query().Get("offset"); offset != "" {
			if n, err := strconv.Atoi(offset); err == nil {
				mock.Offsets = append(mock.Offsets, n)
			}
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL (no version prefix).
func (m *MockCrusoe) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCrusoe) Close() {
	m.server.Close()
}

// SetVerifier enables server-side signature verification with the given
// credentials.
func (m *MockCrusoe) SetVerifier(creds signer.Credentials) error {
	verifier, err := signer.New(creds)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.verifier = verifier
	m.mu.Unlock()
	return nil
}

// SetEntries replaces the record store served by the default handler.
func (m *MockCrusoe) SetEntries(entries []map[string]any) {
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCrusoe) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	m.handlers[path] = handler
	m.mu.Unlock()
}

// GetRequestCount returns the number of requests received.
func (m *MockCrusoe) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetOffsets returns the offsets seen across requests, in order.
func (m *MockCrusoe) GetOffsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.Offsets...)
}

// verifyRequest checks the bearer credential the way the real server does:
// re-canonicalize the (decoded) query, rebuild the payload with the
// timestamp header, recompute the MAC.
func (m *MockCrusoe) verifyRequest(r *http.Request) bool {
	m.mu.RLock()
	verifier := m.verifier
	m.mu.RUnlock()

	if verifier == nil {
		return true
	}

	auth := r.Header.Get(signer.HeaderAuthorization)
	timestamp := r.Header.Get(signer.HeaderTimestamp)
	if timestamp == "" || !strings.HasPrefix(auth, "Bearer ") {
		return false
	}

	parts := strings.SplitN(strings.TrimPrefix(auth, "Bearer "), ":", 3)
	if len(parts) != 3 || parts[0] != signer.SignatureVersion {
		return false
	}

	return verifier.Verify(r.Method, r.URL.Path, r.URL.Query(), timestamp, parts[2])
}

// defaultHandler serves offset pages from the record store.
func (m *MockCrusoe) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !m.verifyRequest(r) {
		m.mu.Lock()
		m.BadSignatures++
		m.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "signature verification failed"}`))
		return
	}

	if !strings.HasSuffix(r.URL.Path, "/audit-logs") {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "not found"}`))
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	entries := m.entries
	m.mu.RUnlock()

	var page []map[string]any
	if offset < len(entries) {
		end := offset + limit
		if end > len(entries) {
			end = len(entries)
		}
		page = entries[offset:end]
	}
	if page == nil {
		page = []map[string]any{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"items": page})
}

// MakeEntries builds n distinct audit-log records for tests.
func MakeEntries(n int) []map[string]any {
	entries := make([]map[string]any, n)
	for i := range entries {
		entries[i] = map[string]any{
			"action":    "vm.create",
			"actor":     "user@example.com",
			"sequence":  i,
			"result":    "success",
			"source_ip": "198.51.100.7",
		}
	}
	return entries
}
