package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTool makes bounded-timeout HTTP requests on the model's behalf.
type HTTPTool struct{}

// NewHTTPTool creates the "http_request" builtin tool.
func NewHTTPTool() *HTTPTool { return &HTTPTool{} }

func (HTTPTool) Name() string { return "http_request" }

func (HTTPTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	method := strings.ToUpper(fmt.Sprint(args["method"]))
	url, _ := args["url"].(string)
	headersJSON, _ := args["headers"].(string)
	body, _ := args["body"].(string)
	timeoutSeconds := toFloat(args["timeout_seconds"])

	if !isValidHTTPMethod(method) {
		return nil, fmt.Errorf("http_request: invalid method %q", method)
	}
	if url == "" {
		return nil, fmt.Errorf("http_request: url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("http_request: url must start with http:// or https://")
	}

	timeout := 30 * time.Second
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds * float64(time.Second))
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("http_request: creating request: %w", err)
	}
	req.Header.Set("User-Agent", "universal-llm-adapter/0.1.0")

	if headersJSON != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("http_request: invalid headers JSON: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	client := &http.Client{Timeout: timeout}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_request: request failed: %w", err)
	}
	defer resp.Body.Close()
	duration := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_request: reading response: %w", err)
	}

	return formatResponse(method, url, resp.StatusCode, resp.Header, respBody, duration), nil
}

func isValidHTTPMethod(method string) bool {
	switch method {
	case "GET", "POST", "PUT", "DELETE":
		return true
	default:
		return false
	}
}

func formatResponse(method, url string, statusCode int, headers http.Header, body []byte, duration time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %s %s\n", method, url)
	fmt.Fprintf(&b, "Status: %d %s\n", statusCode, http.StatusText(statusCode))
	fmt.Fprintf(&b, "Duration: %v\n", duration)
	fmt.Fprintf(&b, "Content-Length: %d bytes\n", len(body))
	if ct := headers.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&b, "Content-Type: %s\n", ct)
	}
	b.WriteString("\nResponse Body:\n")

	if strings.Contains(strings.ToLower(headers.Get("Content-Type")), "application/json") {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", " "); err == nil {
			b.Write(pretty.Bytes())
			return b.String()
		}
	}
	bodyStr := string(body)
	if len(bodyStr) > 1000 {
		fmt.Fprintf(&b, "%s\n... (truncated, %d more bytes)", bodyStr[:1000], len(bodyStr)-1000)
	} else {
		b.WriteString(bodyStr)
	}
	return b.String()
}
