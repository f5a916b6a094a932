package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/config"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/coordinator"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/registry"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	reg := registry.New(registry.Factories{}, logging.NoopLogger{})
	coord := coordinator.New(reg, logging.NoopLogger{}, logging.NoopLogger{}, nil)
	s := New(cfg, coord, reg, logging.NoopLogger{})
	t.Cleanup(func() { s.Close() })
	return s
}

func validCallSpecBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"llmPriority": []map[string]string{{"provider": "missing", "model": "m"}},
		"messages":    []map[string]string{{"role": "user", "content": "hi"}},
	})
	return body
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected /ready with a missing plugins dir to return 503, got %d", rec.Code)
	}
}

func TestRunRejectsMissingLLMPriority(t *testing.T) {
	s := newTestServer(t, nil)

	body, _ := json.Marshal(map[string]interface{}{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunRejectsUnsupportedMediaType(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validCallSpecBody()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestRunRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestAuthRequiredReturnsUnauthorizedNotBadRequest(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Auth = config.AuthConfig{Enabled: true, AllowAPIKeyHeader: true, HeaderName: "x-api-key", APIKeys: []string{"secret"}}
	})

	// No credential at all, and a malformed body: auth must be checked
	// before body parsing, so this is 401, not 400.
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthAcceptsValidAPIKey(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Auth = config.AuthConfig{Enabled: true, AllowAPIKeyHeader: true, HeaderName: "x-api-key", APIKeys: []string{"secret"}}
	})

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validCallSpecBody()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("expected the valid key to pass authentication, got 401: %s", rec.Body.String())
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://example.com"}}
	})

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected the allowed origin echoed back, got %q", got)
	}
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://allowed.com"}}
	})

	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "https://evil.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected a disallowed origin to receive no CORS header")
	}
}

func TestAdmissionServerBusyWhenConcurrencyAndQueueExhausted(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Admission = config.AdmissionConfig{MaxConcurrentRequests: 1, MaxQueueSize: 0, QueueTimeoutMs: 1000}
	})

	release, err := s.runLimiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error acquiring the only slot: %v", err)
	}
	defer release()

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validCallSpecBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 server_busy, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if errObj, _ := payload["error"].(map[string]interface{}); errObj["code"] != "server_busy" {
		t.Fatalf("expected error code server_busy, got %v", payload)
	}
}

func TestAdmissionQueueTimeout(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Admission = config.AdmissionConfig{MaxConcurrentRequests: 1, MaxQueueSize: 1, QueueTimeoutMs: 50}
	})

	release, err := s.runLimiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(validCallSpecBody()))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		done <- rec
	}()

	select {
	case rec := <-done:
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 queue_timeout, got %d: %s", rec.Code, rec.Body.String())
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatal(err)
		}
		if errObj, _ := payload["error"].(map[string]interface{}); errObj["code"] != "queue_timeout" {
			t.Fatalf("expected error code queue_timeout, got %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the queued request to resolve")
	}
}

func TestReadyReturnsOKWhenPluginsPathExists(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.PluginsPath = t.TempDir()
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when the plugins path exists, got %d", rec.Code)
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
