// Package testutil provides testing utilities for the Tiki crawler.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock catalog endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is a configurable mock of the Tiki product-detail API. Each
// product can be given a sequence of responses, consumed one per request,
// the last one repeating. That models a product that returns 429 a few
// times and then succeeds.
type MockCatalog struct {
	server *httptest.Server

	mu        sync.Mutex
	sequences map[string][]MockResponse
	served    map[string]int

	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockCatalog creates a mock catalog server. Callers must Close it.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		sequences: make(map[string][]MockResponse),
		served:    make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := productID(r.URL.Path)

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		resp, ok := mock.nextResponseLocked(id)
		mock.mu.Unlock()

		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error": "product %s not found"}`, id)
			return
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if resp.Headers["Content-Type"] == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears tracking counters and served-response positions.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.served = make(map[string]int)
}

// SetProduct configures a successful product response.
func (m *MockCatalog) SetProduct(id string, body string) {
	m.SetSequence(id, MockResponse{StatusCode: http.StatusOK, Body: body})
}

// SetSequence configures the ordered responses for one product. The last
// response repeats once the sequence is exhausted.
func (m *MockCatalog) SetSequence(id string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[id] = responses
	m.served[id] = 0
}

// GetRequestCount returns the total number of requests served.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetProductRequestCount returns the number of requests served for one product.
func (m *MockCatalog) GetProductRequestCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served[id]
}

func (m *MockCatalog) nextResponseLocked(id string) (MockResponse, bool) {
	seq, ok := m.sequences[id]
	if !ok || len(seq) == 0 {
		return MockResponse{}, false
	}
	pos := m.served[id]
	m.served[id] = pos + 1
	if pos >= len(seq) {
		pos = len(seq) - 1
	}
	return seq[pos], true
}

// productID extracts the trailing path segment, the product identifier.
func productID(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ProductBody renders a minimal product-detail payload for a product.
func ProductBody(id, name string) string {
	return fmt.Sprintf(`{
		"id": %s,
		"name": %q,
		"url_key": "product-%s",
		"price": 125000,
		"description": "<p>%s</p>",
		"thumbnail_url": "https://img.example.com/%s.jpg"
	}`, id, name, id, name, id)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Product not found"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}
