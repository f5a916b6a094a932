package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesToCategoryFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	defer m.Close()

	log := m.Logger(CategoryLLM)
	log.Info(context.Background(), "provider call", F("provider", "openai"))

	entries, err := os.ReadDir(filepath.Join(dir, "llm"))
	if err != nil {
		t.Fatalf("expected an llm subdirectory to be created: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected a log file to be created")
	}
	data, err := os.ReadFile(filepath.Join(dir, "llm", entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "provider call") {
		t.Fatalf("expected the log message in the file, got %s", data)
	}
}

func TestLoggerIsCachedPerCategory(t *testing.T) {
	m := NewManager(t.TempDir())
	defer m.Close()

	a := m.Logger(CategoryGeneric)
	b := m.Logger(CategoryGeneric)
	if a != b {
		t.Fatal("expected the same logger instance to be returned for a repeated category")
	}
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Logger(CategoryGeneric)
	m.Close()
	m.Close() // must not panic or block
}

func TestManagerClosedReturnsNoopLogger(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Close()
	log := m.Logger(CategoryGeneric)
	if _, ok := log.(NoopLogger); !ok {
		t.Fatalf("expected a NoopLogger after Close, got %T", log)
	}
}

func TestDisableFileLogsSkipsFileCreation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDisableFileLogs, "1")
	m := NewManager(dir)
	defer m.Close()

	m.Logger(CategoryGeneric).Info(context.Background(), "hello")

	if _, err := os.Stat(dir); err == nil {
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Fatalf("expected no files written when file logging is disabled, found %v", entries)
		}
	}
}

func TestWithCorrelationDoesNotMutateParent(t *testing.T) {
	m := NewManager(t.TempDir())
	defer m.Close()

	base := m.Logger(CategoryGeneric)
	derived := base.WithCorrelation("req-123")
	if derived == base {
		t.Fatal("expected WithCorrelation to return a distinct logger")
	}
}
