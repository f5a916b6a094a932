// Package config loads the process-wide server/admission/registry
// settings ("dotenv loading" and config_loader.go
// pattern): a YAML file with environment-variable overrides, read once at
// process start. The core never reads configuration itself — cmd/adapterd
// loads a Config and hands the resulting struct to the server and
// registry constructors ("the core depends only on their
// operation contracts").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AuthConfig configures the optional authentication layer.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
	AllowBearer bool `yaml:"allowBearer"`
	AllowAPIKeyHeader bool `yaml:"allowApiKeyHeader"`
	HeaderName string `yaml:"headerName"`
	APIKeys []string `yaml:"apiKeys"`
	HashedKeys []string `yaml:"hashedKeys"`
}

// CORSConfig configures cross-origin handling.
type CORSConfig struct {
	Enabled bool `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

// RateLimitConfig configures the per-identity token bucket.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst int `yaml:"burst"`
	TrustProxyHeaders bool `yaml:"trustProxyHeaders"`
}

// AdmissionConfig configures the bounded concurrency + queue limiters
//.
type AdmissionConfig struct {
	MaxConcurrentRequests int `yaml:"maxConcurrentRequests"`
	MaxConcurrentStreams int `yaml:"maxConcurrentStreams"`
	MaxQueueSize int `yaml:"maxQueueSize"`
	QueueTimeoutMs int `yaml:"queueTimeoutMs"`
}

// TimeoutConfig configures the three independent per-request timers
//.
type TimeoutConfig struct {
	RequestTimeoutMs int `yaml:"requestTimeoutMs"`
	StreamIdleTimeoutMs int `yaml:"streamIdleTimeoutMs"`
	BodyReadTimeoutMs int `yaml:"bodyReadTimeoutMs"`
}

// ServerConfig is the full HTTP/SSE serving-layer configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	SecurityHeaders bool `yaml:"securityHeaders"`
	MaxRequestBytes int64 `yaml:"maxRequestBytes"`
	Auth AuthConfig `yaml:"auth"`
	CORS CORSConfig `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Admission AdmissionConfig `yaml:"admission"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// Config is the root configuration document ("external
// collaborators"): server admission settings plus the on-disk location of
// the plugin/provider/tool manifests the registry loads.
type Config struct {
	Server ServerConfig `yaml:"server"`
	PluginsPath string `yaml:"pluginsPath"`
	LogsDir string `yaml:"logsDir"`
}

// Default returns the configuration examples ship with:
// auth and CORS off, generous but bounded admission limits, matching the
// "secure by default where it costs nothing, permissive where it would
// otherwise break local use" posture of agent/config.go's DefaultConfig.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
			SecurityHeaders: true,
			MaxRequestBytes: 2 << 20, // 2MiB
			Auth: AuthConfig{HeaderName: "x-api-key"},
			RateLimit: RateLimitConfig{RequestsPerMinute: 60, Burst: 10},
			Admission: AdmissionConfig{
				MaxConcurrentRequests: 16,
				MaxConcurrentStreams: 16,
				MaxQueueSize: 32,
				QueueTimeoutMs: 5000,
			},
			Timeouts: TimeoutConfig{
				RequestTimeoutMs: 60000,
				StreamIdleTimeoutMs: 30000,
				BodyReadTimeoutMs: 10000,
			},
		},
		PluginsPath: "plugins",
		LogsDir: "logs",
	}
}

// Load reads a YAML file at path (if it exists) over Default, then
// applies the recognized LLM_ADAPTER_* environment-variable overrides.
// A missing path is not an error: Default plus env overrides is a
// complete, runnable configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets the most commonly-tweaked settings be set without
// editing the YAML file, the way config_loader.go layers
// WithAPIKeyEnv-style overrides over a loaded struct.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_ADAPTER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LLM_ADAPTER_PLUGINS_PATH"); v != "" {
		cfg.PluginsPath = v
	}
	if v := os.Getenv("LLM_ADAPTER_LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("LLM_ADAPTER_API_KEYS"); v != "" {
		cfg.Server.Auth.Enabled = true
		cfg.Server.Auth.AllowAPIKeyHeader = true
		cfg.Server.Auth.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("LLM_ADAPTER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORS.Enabled = true
		cfg.Server.CORS.AllowedOrigins = strings.Split(v, ",")
	}
	if n, ok := envInt("LLM_ADAPTER_MAX_CONCURRENT_REQUESTS"); ok {
		cfg.Server.Admission.MaxConcurrentRequests = n
	}
	if n, ok := envInt("LLM_ADAPTER_MAX_CONCURRENT_STREAMS"); ok {
		cfg.Server.Admission.MaxConcurrentStreams = n
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Duration helpers: the YAML/env surface uses plain milliseconds (matching
// runtime knobs), converted to time.Duration at the point of use.

func (c TimeoutConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c TimeoutConfig) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleTimeoutMs) * time.Millisecond
}

func (c TimeoutConfig) BodyReadTimeout() time.Duration {
	return time.Duration(c.BodyReadTimeoutMs) * time.Millisecond
}

func (c AdmissionConfig) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutMs) * time.Millisecond
}
