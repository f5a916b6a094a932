package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/retention"
)

// Category names a wire logger and its on-disk directory.
type Category string

const (
	CategoryGeneric Category = "adapter"
	CategoryLLM Category = "llm"
	CategoryEmbedding Category = "embedding"
	CategoryVector Category = "vector"
)

// Env vars recognized by Manager.
const (
	EnvDisableFileLogs = "LLM_ADAPTER_DISABLE_FILE_LOGS"
	EnvDisableConsoleLogs = "LLM_ADAPTER_DISABLE_CONSOLE_LOGS"
	EnvBatchID = "LLM_ADAPTER_BATCH_ID"
	EnvBatchDir = "LLM_ADAPTER_BATCH_DIR"
	EnvLLMLogMaxFiles = "LLM_ADAPTER_LLM_LOG_MAX_FILES"
	EnvBatchLogMaxFiles = "LLM_ADAPTER_BATCH_LOG_MAX_FILES"
)

// Manager owns the process-wide category loggers and their file handles,
// lazily created on first write, closed together with a bounded drain
// timeout ("close drains all transports with a bounded timeout
// (>=1s, <=2s) even if transports never signal completion").
type Manager struct {
	baseDir string

	disableFileLogs bool
	disableConsoleLogs bool
	batchID string
	batchDir bool

	enforcer *retention.Enforcer

	mu sync.Mutex
	loggers map[Category]*SlogLogger
	files map[Category]*os.File
	closed bool
}

// NewManager reads the recognized environment variables and returns a
// Manager rooted at baseDir (default "logs").
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = "logs"
	}
	return &Manager{
		baseDir: baseDir,
		disableFileLogs: os.Getenv(EnvDisableFileLogs) == "1",
		disableConsoleLogs: os.Getenv(EnvDisableConsoleLogs) == "1",
		batchID: os.Getenv(EnvBatchID),
		batchDir: os.Getenv(EnvBatchDir) == "1",
		enforcer: retention.NewEnforcer(10 * time.Second),
		loggers: make(map[Category]*SlogLogger),
		files: make(map[Category]*os.File),
	}
}

// Logger returns (creating lazily) the logger for the given category.
func (m *Manager) Logger(category Category) Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NoopLogger{}
	}
	if l, ok := m.loggers[category]; ok {
		return l
	}

	handler := m.buildHandler(category)
	sl := NewSlogLogger(slog.New(handler), string(category))
	m.loggers[category] = sl
	return sl
}

func (m *Manager) buildHandler(category Category) slog.Handler {
	var writers []io.Writer
	if !m.disableConsoleLogs {
		writers = append(writers, os.Stderr)
	}
	if !m.disableFileLogs {
		if f, err := m.openLogFile(category); err == nil {
			m.files[category] = f
			writers = append(writers, f)
		}
	}
	if len(writers) == 0 {
		return slog.NewJSONHandler(io.Discard, nil)
	}
	return slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: slog.LevelDebug})
}

// openLogFile creates the path for category following the on-disk log
// layout and enforces retention on its directory before returning the
// opened file.
func (m *Manager) openLogFile(category Category) (*os.File, error) {
	dir, name, policy := m.layout(category)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if policy.MaxFiles > 0 || policy.MaxAge > 0 {
		_ = m.enforcer.Enforce(dir, string(category), policy)
	}
	return f, nil
}

func (m *Manager) layout(category Category) (dir, filename string, policy retention.Policy) {
	ts := time.Now().Format("20060102-150405")

	if category == CategoryGeneric {
		if m.batchID != "" {
			return m.baseDir, fmt.Sprintf("adapter-batch-%s.log", m.batchID), retention.Policy{}
		}
		return m.baseDir, fmt.Sprintf("adapter-%s.log", ts), retention.Policy{}
	}

	subdir := filepath.Join(m.baseDir, string(category))
	llmMax := envInt(EnvLLMLogMaxFiles, 0)
	batchMax := envInt(EnvBatchLogMaxFiles, 0)

	if m.batchID == "" {
		return subdir, fmt.Sprintf("%s-%s.log", category, ts), retention.Policy{MaxFiles: llmMax}
	}
	if m.batchDir {
		dir = filepath.Join(subdir, "batch-"+m.batchID)
		return dir, fmt.Sprintf("%s.log", category), retention.Policy{MaxFiles: batchMax}
	}
	return subdir, fmt.Sprintf("%s-batch-%s.log", category, m.batchID), retention.Policy{MaxFiles: batchMax}
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Close drains all open transports, bounded to between 1s and 2s, and is
// idempotent ("make close idempotent").
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	files := make([]*os.File, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, f := range files {
			_ = f.Sync()
			_ = f.Close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
