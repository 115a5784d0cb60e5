package testutil

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockHEC is a fake Splunk HTTP Event Collector. It records every delivered
// batch and rejects requests without the expected collector token.
type MockHEC struct {
	server *httptest.Server
	mu     sync.RWMutex

	Token        string
	FailRequests int // fail this many deliveries with 503 before accepting

	Batches      [][]map[string]any
	RequestCount int
}

// NewMockHEC creates a mock collector expecting the given token.
func NewMockHEC(token string) *MockHEC {
	mock := &MockHEC{Token: token}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/collector/health" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"text": "HEC is healthy", "code": 17}`))
			return
		}

		mock.mu.Lock()
		defer mock.mu.Unlock()
		mock.RequestCount++

		if r.Header.Get("Authorization") != "Splunk "+mock.Token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"text": "Invalid token", "code": 4}`))
			return
		}

		if mock.FailRequests > 0 {
			mock.FailRequests--
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"text": "Server is busy", "code": 9}`))
			return
		}

		// HEC batches are newline-delimited event envelopes.
		var batch []map[string]any
		scanner := bufio.NewScanner(r.Body)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var envelope map[string]any
			if err := json.Unmarshal([]byte(line), &envelope); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"text": "Invalid data format", "code": 6}`))
				return
			}
			batch = append(batch, envelope)
		}
		mock.Batches = append(mock.Batches, batch)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"text": "Success", "code": 0}`))
	}))

	return mock
}

// URL returns the mock collector base URL.
func (m *MockHEC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockHEC) Close() {
	m.server.Close()
}

// EventCount returns the total number of events received across batches.
func (m *MockHEC) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, batch := range m.Batches {
		total += len(batch)
	}
	return total
}

// BatchSizes returns the received batch sizes in delivery order.
func (m *MockHEC) BatchSizes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sizes := make([]int, len(m.Batches))
	for i, batch := range m.Batches {
		sizes[i] = len(batch)
	}
	return sizes
}
