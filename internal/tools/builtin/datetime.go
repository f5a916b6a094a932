// Package builtin adapts standalone agent tools
// (agent/tools/{datetime,math,http,filesystem}.go) into registry.Tool
// implementations constructed by cmd/adapterd's Factories.Tool, so a
// manifest can declare `handler: datetime` etc. without a custom Go tool
// loader.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateTimeTool implements date/time operations: current time, formatting,
// parsing, calculations, timezone conversion.
type DateTimeTool struct{}

// NewDateTimeTool creates the "datetime" builtin tool.
func NewDateTimeTool() *DateTimeTool { return &DateTimeTool{} }

func (DateTimeTool) Name() string { return "datetime" }

func (DateTimeTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	op, _ := args["operation"].(string)
	date, _ := args["date"].(string)
	format, _ := args["format"].(string)
	tz, _ := args["timezone"].(string)
	duration, _ := args["duration"].(string)
	date2, _ := args["date2"].(string)

	switch op {
	case "current_time":
		loc, err := getLocation(tz)
		if err != nil {
			return nil, err
		}
		now := time.Now().In(loc)
		return fmt.Sprintf("Current time in %s:\n%s\nUnix: %d", loc.String(), formatTime(now, format), now.Unix()), nil

	case "format_date":
		t, err := parseDateTime(date)
		if err != nil {
			return nil, err
		}
		if tz != "" {
			loc, err := getLocation(tz)
			if err != nil {
				return nil, err
			}
			t = t.In(loc)
		}
		return fmt.Sprintf("Formatted date:\n%s", formatTime(t, format)), nil

	case "parse_date":
		t, err := parseDateTime(date)
		if err != nil {
			return nil, err
		}
		if tz != "" {
			loc, err := getLocation(tz)
			if err != nil {
				return nil, err
			}
			t = t.In(loc)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Date: %s\n", t.Format("2006-01-02"))
		fmt.Fprintf(&b, "Time: %s\n", t.Format("15:04:05"))
		fmt.Fprintf(&b, "Timezone: %s\n", t.Location())
		fmt.Fprintf(&b, "Day of week: %s\n", t.Weekday())
		fmt.Fprintf(&b, "Day of year: %d\n", t.YearDay())
		_, week := t.ISOWeek()
		fmt.Fprintf(&b, "Week number: %d\n", week)
		fmt.Fprintf(&b, "Unix timestamp: %d\n", t.Unix())
		fmt.Fprintf(&b, "RFC3339: %s\n", t.Format(time.RFC3339))
		return b.String(), nil

	case "add_duration":
		t, err := parseDateTime(date)
		if err != nil {
			return nil, err
		}
		d, err := parseDurationWithDays(duration)
		if err != nil {
			return nil, err
		}
		result := t.Add(d)
		if tz != "" {
			loc, err := getLocation(tz)
			if err != nil {
				return nil, err
			}
			result = result.In(loc)
		}
		return fmt.Sprintf("Original: %s\nDuration: %s\nResult: %s", t.Format(time.RFC3339), duration, result.Format(time.RFC3339)), nil

	case "date_diff":
		t1, err := parseDateTime(date)
		if err != nil {
			return nil, fmt.Errorf("invalid date: %w", err)
		}
		t2, err := parseDateTime(date2)
		if err != nil {
			return nil, fmt.Errorf("invalid date2: %w", err)
		}
		diff := t2.Sub(t1)
		days := int(diff.Hours() / 24)
		hours := int(diff.Hours()) % 24
		minutes := int(diff.Minutes()) % 60
		return fmt.Sprintf("Difference: %d days, %d hours, %d minutes\nTotal hours: %.2f", days, hours, minutes, diff.Hours()), nil

	case "convert_timezone":
		t, err := parseDateTime(date)
		if err != nil {
			return nil, err
		}
		loc, err := getLocation(tz)
		if err != nil {
			return nil, err
		}
		converted := t.In(loc)
		return fmt.Sprintf("Original: %s (%s)\nConverted: %s (%s)", t.Format(time.RFC3339), t.Location(), converted.Format(time.RFC3339), loc), nil

	case "day_of_week":
		t, err := parseDateTime(date)
		if err != nil {
			return nil, err
		}
		_, week := t.ISOWeek()
		return fmt.Sprintf("Date: %s\nDay of week: %s\nWeek number: %d", t.Format("2006-01-02"), t.Weekday(), week), nil

	default:
		return nil, fmt.Errorf("datetime: unknown operation %q", op)
	}
}

func parseDateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("datetime: date is required")
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
		time.RFC1123,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("datetime: unable to parse date %q", s)
}

func getLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("datetime: invalid timezone %q", tz)
	}
	return loc, nil
}

func formatTime(t time.Time, format string) string {
	switch strings.ToLower(format) {
	case "", "rfc3339":
		return t.Format(time.RFC3339)
	case "rfc1123":
		return t.Format(time.RFC1123)
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	default:
		return t.Format(format)
	}
}

func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil {
			return 0, fmt.Errorf("datetime: invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("datetime: invalid duration %q (use 24h, 30m, 7d)", s)
	}
	return d, nil
}
