// Command adapterd is the process entrypoint: it loads configuration and
// manifests, wires the registry's Factories to the concrete compat/
// vectorstore/embedding/MCP/tool drivers, and serves the HTTP/SSE surface
// of until terminated. Grounded on main.go startup
// sequence (load env, build clients, run), generalized from "one provider
// per process" to "every registered provider, lazily constructed".
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat/geminicompat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/compat/openaicompat"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/config"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/coordinator"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/embedding"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/embedding/ollamaembed"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/embedding/openaiembed"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/mcp"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/registry"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/server"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/tools/builtin"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorctx"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore/memstore"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore/qdrantstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("LLM_ADAPTER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("adapterd: loading config: %w", err)
	}

	logs := logging.NewManager(cfg.LogsDir)
	defer logs.Close()
	genericLog := logs.Logger(logging.CategoryGeneric)
	llmLog := logs.Logger(logging.CategoryLLM)

	reg := registry.New(buildFactories(cfg), genericLog)
	if addr := os.Getenv("LLM_ADAPTER_REDIS_ADDR"); addr != "" {
		cache, err := registry.NewManifestCache(addr, os.Getenv("LLM_ADAPTER_REDIS_PASSWORD"), 0, 5*time.Minute)
		if err != nil {
			genericLog.Warn(context.Background(), "adapterd: manifest cache unavailable", logging.F("error", err.Error()))
		} else {
			defer cache.Close()
			reg.WithManifestCache(cache)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := reg.LoadAll(ctx, cfg.PluginsPath); err != nil {
		return fmt.Errorf("adapterd: loading manifests: %w", err)
	}

	injector := vectorctx.New(storeResolver(reg), embeddingResolver(reg))
	coord := coordinator.New(reg, genericLog, llmLog, injector)

	srv := server.New(cfg, coord, reg, genericLog)
	defer srv.Close()

	httpServer := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		genericLog.Info(ctx, "adapterd listening", logging.F("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		genericLog.Info(context.Background(), "adapterd shutting down", logging.F("reason", ctx.Err().Error()))
	case err := <-errCh:
		return fmt.Errorf("adapterd: serving: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("adapterd: graceful shutdown: %w", err)
	}
	return nil
}

// buildFactories wires registry.Factories to the concrete drivers this
// process ships: openai/gemini compat modules, memstore/qdrant vector
// stores, openai/ollama embedding providers, stdio MCP servers, and the
// builtin function tools.
func buildFactories(cfg config.Config) registry.Factories {
	return registry.Factories{
		CompatModule: func(family string) (interface{}, error) {
			switch family {
			case "openai":
				return openaicompat.New(), nil
			case "gemini":
				apiKey := os.Getenv("GEMINI_API_KEY")
				if apiKey == "" {
					return nil, fmt.Errorf("adapterd: GEMINI_API_KEY not set")
				}
				return geminicompat.New(context.Background(), apiKey)
			default:
				return nil, fmt.Errorf("adapterd: unknown compat family %q", family)
			}
		},
		VectorStore: func(vc registry.VectorStoreConfig) (interface{}, error) {
			switch vc.Driver {
			case "memstore":
				return memstore.New(vc.ID), nil
			case "qdrant":
				apiKey := extraEnv(vc.Extra, "apiKeyEnv")
				return qdrantstore.New(vc.ID, vc.URL, apiKey), nil
			default:
				return nil, fmt.Errorf("adapterd: unknown vector store driver %q", vc.Driver)
			}
		},
		EmbeddingProvider: func(ec registry.EmbeddingProviderConfig) (interface{}, error) {
			switch ec.Driver {
			case "openai":
				return openaiembed.New(ec.ID, ec.Model, os.Getenv(ec.APIKeyEnv), ec.BaseURL)
			case "ollama":
				return ollamaembed.New(ec.ID, ec.Model, ec.BaseURL), nil
			default:
				return nil, fmt.Errorf("adapterd: unknown embedding driver %q", ec.Driver)
			}
		},
		Tool: func(desc registry.ToolDescriptor) (registry.Tool, error) {
			switch desc.Handler {
			case "datetime":
				return builtin.NewDateTimeTool(), nil
			case "math":
				return builtin.NewMathTool(), nil
			case "http_request":
				return builtin.NewHTTPTool(), nil
			case "filesystem":
				return builtin.NewFileSystemTool(filepath.Join(cfg.PluginsPath, "sandbox")), nil
			default:
				return nil, fmt.Errorf("adapterd: unknown tool handler %q", desc.Handler)
			}
		},
		MCPServer: func(mc registry.MCPServerConfig) (interface{}, error) {
			return mcp.Connect(context.Background(), mcp.Config{ID: mc.ID, Command: mc.Command, Args: mc.Args})
		},
	}
}

func extraEnv(extra map[string]interface{}, key string) string {
	name, ok := extra[key].(string)
	if !ok || name == "" {
		return ""
	}
	return os.Getenv(name)
}

// storeResolver adapts registry.GetVectorStore's untyped lookup to
// vectorctx.StoreResolver.
func storeResolver(reg *registry.Registry) vectorctx.StoreResolver {
	return func(id string) (vectorstore.VectorStore, error) {
		inst, err := reg.GetVectorStore(id)
		if err != nil {
			return nil, err
		}
		vs, ok := inst.(vectorstore.VectorStore)
		if !ok {
			return nil, fmt.Errorf("adapterd: vector store %q does not implement VectorStore", id)
		}
		return vs, nil
	}
}

// embeddingResolver adapts registry.GetEmbeddingProvider's untyped lookup
// to vectorctx.EmbeddingResolver.
func embeddingResolver(reg *registry.Registry) vectorctx.EmbeddingResolver {
	return func(id string) (embedding.Provider, error) {
		inst, err := reg.GetEmbeddingProvider(id)
		if err != nil {
			return nil, err
		}
		ep, ok := inst.(embedding.Provider)
		if !ok {
			return nil, fmt.Errorf("adapterd: embedding provider %q does not implement Provider", id)
		}
		return ep, nil
	}
}
