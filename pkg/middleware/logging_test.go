package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int64
		wantLevel  zapcore.Level
	}{
		{
			name:       "implicit 200",
			handler:    func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) },
			wantStatus: http.StatusOK,
			wantLevel:  zap.DebugLevel,
		},
		{
			name:       "client error stays at debug",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantStatus: http.StatusTooManyRequests,
			wantLevel:  zap.DebugLevel,
		},
		{
			name: "first WriteHeader wins",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusBadRequest,
			wantLevel:  zap.DebugLevel,
		},
		{
			name:       "server error",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			wantStatus: http.StatusServiceUnavailable,
			wantLevel:  zap.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			RequestLogger(zap.New(core))(tt.handler).
				ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/languages", nil))

			if logs.Len() != 1 {
				t.Fatalf("expected 1 log entry, got %d", logs.Len())
			}
			entry := logs.All()[0]
			if entry.Message != "HTTP request" {
				t.Errorf("unexpected message %q", entry.Message)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entry.Level)
			}
			if got := entry.ContextMap()["status"]; got != tt.wantStatus {
				t.Errorf("expected status %d, got %v", tt.wantStatus, got)
			}
			if got := entry.ContextMap()["path"]; got != "/api/languages" {
				t.Errorf("expected path /api/languages, got %v", got)
			}
		})
	}
}

func TestRequestLogger_ServerErrorsLogAtError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := logs.All()[0]
	if entry.Level != zap.ErrorLevel {
		t.Errorf("expected error level, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["remote_ip"] != "10.0.0.1" {
		t.Errorf("expected remote_ip 10.0.0.1, got %v", fields["remote_ip"])
	}
	if fields["forwarded_for"] != "203.0.113.7" {
		t.Errorf("expected forwarded_for 203.0.113.7, got %v", fields["forwarded_for"])
	}
	if fields["bytes"] != int64(len("boom\n")) {
		t.Errorf("expected %d bytes, got %v", len("boom\n"), fields["bytes"])
	}
}

func TestResponseWriter_WriteMarksHeaderWritten(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rw.WriteHeader(http.StatusTeapot)

	if rw.statusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rw.statusCode)
	}
	if rw.bytes != 5 {
		t.Errorf("expected 5 bytes, got %d", rw.bytes)
	}
}
