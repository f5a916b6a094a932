package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRequestGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"method": "get",
		"url":    srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := out.(string)
	if !strings.Contains(s, "Status: 200") || !strings.Contains(s, `"ok": true`) {
		t.Fatalf("unexpected response: %q", s)
	}
}

func TestHTTPRequestRejectsMissingURL(t *testing.T) {
	tool := NewHTTPTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"method": "GET"}); err == nil {
		t.Fatal("expected an error when url is missing")
	}
}

func TestHTTPRequestRejectsNonHTTPScheme(t *testing.T) {
	tool := NewHTTPTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"method": "GET", "url": "ftp://example.com",
	}); err == nil {
		t.Fatal("expected an error for a non-http(s) url")
	}
}

func TestHTTPRequestRejectsUnsupportedMethod(t *testing.T) {
	tool := NewHTTPTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"method": "PATCH", "url": "http://example.com",
	}); err == nil {
		t.Fatal("expected an error for an unsupported method")
	}
}

func TestHTTPRequestTruncatesLargeBody(t *testing.T) {
	big := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(big))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"method": "GET", "url": srv.URL,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.(string), "truncated") {
		t.Fatal("expected a truncation marker for a large body")
	}
}
