package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/registry"
)

// httpTransport performs the actual request/response and SSE-framed
// streaming cycle for HTTP-shape compat modules; compat modules only
// describe the wire shape, the coordinator owns the
// transport, the way Builder owns its http.Client
// independent of the adapter's message conversion. Every round trip is
// recorded on llmLog with its Authorization header redacted.
type httpTransport struct {
	client *http.Client
	llmLog logging.Logger
}

func newHTTPTransport(llmLog logging.Logger) *httpTransport {
	if llmLog == nil {
		llmLog = logging.NoopLogger{}
	}
	return &httpTransport{client: &http.Client{Timeout: 120 * time.Second}, llmLog: llmLog}
}

func (t *httpTransport) logRoundTrip(ctx context.Context, method, url, auth string, statusCode, bodyLen int) {
	headers := map[string]string{}
	if auth != "" {
		headers["Authorization"] = logging.RedactCredential(auth)
	}
	t.llmLog.Debug(ctx, "provider round trip", logging.F("entry", logging.WireLogEntry(method, url, headers, statusCode, bodyLen)))
}

func (t *httpTransport) authHeader(provider registry.ProviderConfig) string {
	if provider.APIKeyEnv == "" {
		return ""
	}
	key := os.Getenv(provider.APIKeyEnv)
	if key == "" {
		return ""
	}
	return "Bearer " + key
}

// Do executes one non-streaming HTTP-shape provider call and returns the
// raw response body for the compat module's ParseResponse.
func (t *httpTransport) Do(ctx context.Context, provider registry.ProviderConfig, hc compat.HTTPCompat, payload map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("coordinator: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+hc.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coordinator: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := t.authHeader(provider); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &transportError{Err: fmt.Errorf("coordinator: request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("coordinator: reading response: %w", err)}
	}
	t.logRoundTrip(ctx, req.Method, req.URL.String(), req.Header.Get("Authorization"), resp.StatusCode, len(raw))
	if resp.StatusCode >= 300 {
		return nil, &transportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("coordinator: provider returned %d: %s", resp.StatusCode, string(raw))}
	}
	return raw, nil
}

// DoStream executes a streaming HTTP-shape provider call and returns the
// open response body for the aggregator to scan as SSE frames.
func (t *httpTransport) DoStream(ctx context.Context, provider registry.ProviderConfig, hc compat.HTTPCompat, payload map[string]interface{}) (io.ReadCloser, error) {
	streamPayload := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		streamPayload[k] = v
	}
	streamPayload["stream"] = true

	body, err := json.Marshal(streamPayload)
	if err != nil {
		return nil, fmt.Errorf("coordinator: marshaling stream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+hc.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coordinator: building stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if auth := t.authHeader(provider); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &transportError{Err: fmt.Errorf("coordinator: stream request failed: %w", err)}
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.logRoundTrip(ctx, req.Method, req.URL.String(), req.Header.Get("Authorization"), resp.StatusCode, len(raw))
		return nil, &transportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("coordinator: provider returned %d: %s", resp.StatusCode, string(raw))}
	}
	t.logRoundTrip(ctx, req.Method, req.URL.String(), req.Header.Get("Authorization"), resp.StatusCode, -1)
	return resp.Body, nil
}
