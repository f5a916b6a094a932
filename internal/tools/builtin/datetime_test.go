package builtin

import (
	"context"
	"strings"
	"testing"
)

func TestDateTimeCurrentTime(t *testing.T) {
	tool := NewDateTimeTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{"operation": "current_time", "timezone": "UTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.(string), "UTC") {
		t.Fatalf("expected UTC in output, got %q", out)
	}
}

func TestDateTimeFormatDate(t *testing.T) {
	tool := NewDateTimeTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "format_date",
		"date":      "2024-03-15",
		"format":    "unix",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.(string), "1710460800") {
		t.Fatalf("unexpected formatted output: %q", out)
	}
}

func TestDateTimeAddDuration(t *testing.T) {
	tool := NewDateTimeTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "add_duration",
		"date":      "2024-01-01T00:00:00Z",
		"duration":  "2d",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.(string), "2024-01-03") {
		t.Fatalf("expected a two-day shift, got %q", out)
	}
}

func TestDateTimeDateDiff(t *testing.T) {
	tool := NewDateTimeTool()
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "date_diff",
		"date":      "2024-01-01T00:00:00Z",
		"date2":     "2024-01-02T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.(string), "1 days, 12 hours") {
		t.Fatalf("unexpected diff output: %q", out)
	}
}

func TestDateTimeInvalidDateErrors(t *testing.T) {
	tool := NewDateTimeTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "parse_date",
		"date":      "not-a-date",
	}); err == nil {
		t.Fatal("expected an error for an unparseable date")
	}
}

func TestDateTimeInvalidTimezoneErrors(t *testing.T) {
	tool := NewDateTimeTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "current_time",
		"timezone":  "Not/A_Zone",
	}); err == nil {
		t.Fatal("expected an error for an invalid timezone")
	}
}

func TestDateTimeUnknownOperationErrors(t *testing.T) {
	tool := NewDateTimeTool()
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"operation": "nope"}); err == nil {
		t.Fatal("expected an error for an unknown operation")
	}
}
