package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"listed origin", []string{"https://app.example"}, "https://app.example", http.MethodGet, "https://app.example", "true", http.StatusOK},
		{"unlisted origin", []string{"https://app.example"}, "https://evil.example", http.MethodGet, "", "", http.StatusOK},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, "*", "", http.StatusOK},
		{"preflight", []string{"*"}, "https://any.example", http.MethodOptions, "*", "", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/upload", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCreds {
				t.Fatalf("Allow-Credentials = %q, want %q", got, tc.wantCreds)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id = %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(seen) != 36 {
		t.Fatalf("oversized id was not replaced: %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc def\x00")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "abc def\x00" || len(seen) != 36 {
		t.Fatalf("id with unsafe characters was not replaced: %q", seen)
	}
}

func TestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/process/j1", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if line["method"] != "POST" || line["path"] != "/api/process/j1" {
		t.Fatalf("line = %v", line)
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(5) {
		t.Fatalf("status/bytes = %v/%v", line["status"], line["bytes"])
	}
	if id, _ := line["request_id"].(string); id == "" {
		t.Fatalf("missing request_id")
	}
}
