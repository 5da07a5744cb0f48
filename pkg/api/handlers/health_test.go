package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/iec104d/pkg/adapter"
)

type fakeSource struct {
	sessions  []adapter.ConnInfo
	admission *adapter.Admission
	stopping  bool
}

func (f *fakeSource) Sessions() []adapter.ConnInfo  { return f.sessions }
func (f *fakeSource) Admission() *adapter.Admission { return f.admission }
func (f *fakeSource) IsShuttingDown() bool          { return f.stopping }

func newFakeSource(t *testing.T, limit int) *fakeSource {
	t.Helper()
	a, err := adapter.NewAdmission(limit)
	if err != nil {
		t.Fatalf("NewAdmission: %v", err)
	}
	return &fakeSource{admission: a}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decode(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "iec104d" {
		t.Errorf("Expected service 'iec104d', got '%v'", data["service"])
	}
}

func TestReadiness_NoSource_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decode(t, w); resp.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestReadiness_ShuttingDown_Returns503(t *testing.T) {
	src := newFakeSource(t, 4)
	src.stopping = true
	w := httptest.NewRecorder()

	NewHealthHandler(src).Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestReadiness_ReportsPermits(t *testing.T) {
	src := newFakeSource(t, 4)
	permit, err := src.admission.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer permit.Release()

	w := httptest.NewRecorder()
	NewHealthHandler(src).Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	data := decode(t, w).Data.(map[string]any)
	if data["active_sessions"] != 1.0 || data["max_connections"] != 4.0 {
		t.Errorf("Unexpected readiness data: %v", data)
	}
}

func sessionsRouter(src SessionSource) http.Handler {
	h := NewSessionsHandler(src)
	r := chi.NewRouter()
	r.Get("/sessions", h.List)
	r.Get("/sessions/{id}", h.Get)
	return r
}

func TestSessions_List(t *testing.T) {
	src := newFakeSource(t, 4)
	src.sessions = []adapter.ConnInfo{
		{ID: 1, RemoteAddr: "10.0.0.5:40000", StartedAt: time.Unix(1700000000, 0).UTC()},
		{ID: 2, RemoteAddr: "10.0.0.6:40001", StartedAt: time.Unix(1700000001, 0).UTC()},
	}

	w := httptest.NewRecorder()
	sessionsRouter(src).ServeHTTP(w, httptest.NewRequest("GET", "/sessions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	list, ok := decode(t, w).Data.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("Expected 2 sessions, got %v", list)
	}
	first := list[0].(map[string]any)
	if first["remote_addr"] != "10.0.0.5:40000" {
		t.Errorf("Unexpected first session: %v", first)
	}
}

func TestSessions_ListEmptyWithoutSource(t *testing.T) {
	w := httptest.NewRecorder()
	sessionsRouter(nil).ServeHTTP(w, httptest.NewRequest("GET", "/sessions", nil))

	list, ok := decode(t, w).Data.([]any)
	if !ok || len(list) != 0 {
		t.Errorf("Expected an empty list, got %v", list)
	}
}

func TestSessions_Get(t *testing.T) {
	src := newFakeSource(t, 4)
	src.sessions = []adapter.ConnInfo{{ID: 7, RemoteAddr: "10.0.0.5:40000"}}
	router := sessionsRouter(src)

	tests := []struct {
		path string
		code int
	}{
		{"/sessions/7", http.StatusOK},
		{"/sessions/8", http.StatusNotFound},
		{"/sessions/abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.code {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.code, w.Code)
		}
	}
}
