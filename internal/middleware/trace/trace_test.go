package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "bilancio/internal/log"
)

func newTestLogger(buf *bytes.Buffer) *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelDebug, Format: "json", Component: "test", Output: buf})
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(newTestLogger(&buf), func(*http.Request) string { return "198.51.100.1" })

	var seen string
	var ctxLogger *applog.Logger
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		ctxLogger = applog.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/preferences", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("expected generated request id, got %q", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header %q does not match context id %q", rec.Header().Get(HeaderRequestID), seen)
	}
	if ctxLogger == nil || ctxLogger.Component() != "test" {
		t.Error("expected the request logger in the context")
	}

	var completed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry["msg"] == "HTTP request completed" {
			completed = entry
		}
	}
	if completed == nil {
		t.Fatal("completion was not logged")
	}
	if completed[applog.FieldStatusCode] != float64(http.StatusCreated) {
		t.Errorf("status_code = %v", completed[applog.FieldStatusCode])
	}
	if completed[applog.FieldRequestID] != seen {
		t.Errorf("request_id = %v", completed[applog.FieldRequestID])
	}
	if completed[applog.FieldClientIP] != "198.51.100.1" {
		t.Errorf("client_ip = %v", completed[applog.FieldClientIP])
	}
}

func TestMiddleware_KeepsValidInboundID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(newTestLogger(&buf), nil)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"valid id", "abc-123", true},
		{"injection attempt", "abc\nlevel=ERROR", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			r.Header.Set(HeaderRequestID, tt.inbound)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			got := rec.Header().Get(HeaderRequestID)
			if (got == tt.inbound) != tt.keep {
				t.Errorf("inbound %q, response %q, keep=%v", tt.inbound, got, tt.keep)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
