package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one registered `{provider, model}` target's
// connection details; the compat module for its Family does the actual
// wire work.
type ProviderConfig struct {
	ID string `yaml:"id"`
	Family string `yaml:"family"`
	BaseURL string `yaml:"baseUrl"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
	Extra map[string]interface{} `yaml:"extra"`
}

// MCPServerConfig describes a registered MCP transport target (// "the MCP transport" is an external collaborator consumed via its
// operation contract only).
type MCPServerConfig struct {
	ID string `yaml:"id"`
	Transport string `yaml:"transport"`
	URL string `yaml:"url"`
	Command string `yaml:"command"`
	Args []string `yaml:"args"`
}

// VectorStoreConfig describes a registered vector store.
type VectorStoreConfig struct {
	ID string `yaml:"id"`
	Driver string `yaml:"driver"`
	URL string `yaml:"url"`
	Collection string `yaml:"collection"`
	Extra map[string]interface{} `yaml:"extra"`
}

// EmbeddingProviderConfig describes a registered embedding provider.
type EmbeddingProviderConfig struct {
	ID string `yaml:"id"`
	Driver string `yaml:"driver"`
	BaseURL string `yaml:"baseUrl"`
	Model string `yaml:"model"`
	APIKeyEnv string `yaml:"apiKeyEnv"`
}

// ToolDescriptor is a manifest-declared function tool (// "functionToolNames: references to registry-loaded function tools").
type ToolDescriptor struct {
	Name string `yaml:"name"`
	Description string `yaml:"description"`
	ParametersJSONSchema map[string]interface{} `yaml:"parametersJsonSchema"`
	Handler string `yaml:"handler"`
}

// ProcessRoute is an additional HTTP route added with RegisterRoute and
// mounted by the server ("getProcessRoutes"); manifests do not declare
// routes.
type ProcessRoute struct {
	Method string
	Path string
	Handler http.Handler
}

// manifest is the on-disk shape loaded from each registry directory entry.
type manifest struct {
	Providers []ProviderConfig `yaml:"providers"`
	MCPServers []MCPServerConfig `yaml:"mcpServers"`
	VectorStores []VectorStoreConfig `yaml:"vectorStores"`
	EmbeddingProviders []EmbeddingProviderConfig `yaml:"embeddingProviders"`
	Tools []ToolDescriptor `yaml:"tools"`
}

// Tool is the minimal contract a registered function tool must satisfy
// (full Tool lives in internal/tools; kept as a local, narrow interface so
// registry does not need to import it — treats tool handlers as
// small external contracts).
type Tool interface {
	Name() string
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Factories supplies the constructors the registry uses to turn a
// manifest-declared config into a live instance, lazily and cached. The
// server wiring (cmd/adapterd) provides these; registry itself stays
// decoupled from any one provider/driver package.
type Factories struct {
	CompatModule func(family string) (interface{}, error)
	VectorStore func(cfg VectorStoreConfig) (interface{}, error)
	EmbeddingProvider func(cfg EmbeddingProviderConfig) (interface{}, error)
	Tool func(desc ToolDescriptor) (Tool, error)
	MCPServer func(cfg MCPServerConfig) (interface{}, error)
}

// Registry is the façade of : a lazy loader exposing providers,
// tools, MCP servers, vector stores, embedding providers, process routes,
// and compat modules by name.
type Registry struct {
	log logging.Logger
	factories Factories

	providers *Store[ProviderConfig]
	mcpServers *Store[MCPServerConfig]
	vectors *Store[VectorStoreConfig]
	embeddings *Store[EmbeddingProviderConfig]
	tools *Store[ToolDescriptor]

	routesMu sync.Mutex
	routes []ProcessRoute

	cacheMu sync.Mutex
	compatCache map[string]interface{}
	vectorCache map[string]interface{}
	embedCache map[string]interface{}
	toolCache map[string]Tool
	mcpCache map[string]interface{}

	loadMu sync.Mutex
	loaded bool

	cache *ManifestCache
}

// WithManifestCache installs an optional Redis-backed cache consulted by
// LoadAll before parsing manifest files from disk.
func (r *Registry) WithManifestCache(cache *ManifestCache) *Registry {
	r.cache = cache
	return r
}

// New creates an empty Registry backed by the given factories.
func New(factories Factories, log logging.Logger) *Registry {
	if log == nil {
		log = logging.NoopLogger{}
	}
	return &Registry{
		log: log,
		factories: factories,
		providers: NewStore[ProviderConfig](),
		mcpServers: NewStore[MCPServerConfig](),
		vectors: NewStore[VectorStoreConfig](),
		embeddings: NewStore[EmbeddingProviderConfig](),
		tools: NewStore[ToolDescriptor](),
		compatCache: make(map[string]interface{}),
		vectorCache: make(map[string]interface{}),
		embedCache: make(map[string]interface{}),
		toolCache: make(map[string]Tool),
		mcpCache: make(map[string]interface{}),
	}
}

// LoadAll reads every manifest file (*.yaml, *.yml) directly under dir, in
// lexicographic filename order, and registers their declared entries.
// Idempotent: a second call is a no-op ("loadAll idempotent").
// Duplicate names across manifests are resolved "first one wins"; the
// losing declaration is skipped with a warning. A manifest that fails to
// parse is skipped with a warning and loading of the remaining manifests
// proceeds ("Invalid manifests are skipped with a warning").
func (r *Registry) LoadAll(ctx context.Context, dir string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	if r.loaded {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.loaded = true
			return nil
		}
		return fmt.Errorf("registry: reading manifest dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	fingerprint, ferr := dirFingerprint(dir, files)
	if ferr == nil && r.cache != nil {
		if snap, hit, err := r.cache.Get(ctx, fingerprint); err == nil && hit {
			r.mergeManifest(ctx, dir, manifest{
				Providers: snap.Providers,
				MCPServers: snap.MCPServers,
				VectorStores: snap.VectorStores,
				EmbeddingProviders: snap.EmbeddingProviders,
				Tools: snap.Tools,
			})
			r.loaded = true
			return nil
		} else if err != nil {
			r.log.Warn(ctx, "registry: manifest cache unavailable, parsing from disk", logging.F("error", err.Error()))
		}
	}

	var merged manifest
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			r.log.Warn(ctx, "registry: skipping unreadable manifest", logging.F("file", path), logging.F("error", err.Error()))
			continue
		}
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			r.log.Warn(ctx, "registry: skipping invalid manifest", logging.F("file", path), logging.F("error", err.Error()))
			continue
		}
		r.mergeManifest(ctx, path, m)
		merged.Providers = append(merged.Providers, m.Providers...)
		merged.MCPServers = append(merged.MCPServers, m.MCPServers...)
		merged.VectorStores = append(merged.VectorStores, m.VectorStores...)
		merged.EmbeddingProviders = append(merged.EmbeddingProviders, m.EmbeddingProviders...)
		merged.Tools = append(merged.Tools, m.Tools...)
	}

	if ferr == nil && r.cache != nil {
		snap := snapshot{
			Providers: merged.Providers,
			MCPServers: merged.MCPServers,
			VectorStores: merged.VectorStores,
			EmbeddingProviders: merged.EmbeddingProviders,
			Tools: merged.Tools,
		}
		if err := r.cache.Set(ctx, fingerprint, snap); err != nil {
			r.log.Warn(ctx, "registry: failed to populate manifest cache", logging.F("error", err.Error()))
		}
	}

	r.loaded = true
	return nil
}

// dirFingerprint hashes each manifest filename with its size and
// modification time, so an edited manifest invalidates the cached
// snapshot without the cache ever reading file contents itself.
func dirFingerprint(dir string, files []string) (string, error) {
	h := sha256.New()
	for _, name := range files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s:%d:%d\n", name, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (r *Registry) mergeManifest(ctx context.Context, file string, m manifest) {
	for _, p := range m.Providers {
		if err := r.providers.Register(p.ID, p); err != nil {
			r.log.Warn(ctx, "registry: duplicate provider skipped", logging.F("file", file), logging.F("id", p.ID))
		}
	}
	for _, s := range m.MCPServers {
		if err := r.mcpServers.Register(s.ID, s); err != nil {
			r.log.Warn(ctx, "registry: duplicate mcp server skipped", logging.F("file", file), logging.F("id", s.ID))
		}
	}
	for _, v := range m.VectorStores {
		if err := r.vectors.Register(v.ID, v); err != nil {
			r.log.Warn(ctx, "registry: duplicate vector store skipped", logging.F("file", file), logging.F("id", v.ID))
		}
	}
	for _, e := range m.EmbeddingProviders {
		if err := r.embeddings.Register(e.ID, e); err != nil {
			r.log.Warn(ctx, "registry: duplicate embedding provider skipped", logging.F("file", file), logging.F("id", e.ID))
		}
	}
	for _, t := range m.Tools {
		if err := r.tools.Register(t.Name, t); err != nil {
			r.log.Warn(ctx, "registry: duplicate tool skipped", logging.F("file", file), logging.F("name", t.Name))
		}
	}
}

// RegisterRoute adds a process route contributed outside manifest loading
// (e.g. by cmd/adapterd wiring built-in endpoints).
func (r *Registry) RegisterRoute(route ProcessRoute) {
	r.routesMu.Lock()
	defer r.routesMu.Unlock()
	r.routes = append(r.routes, route)
}

// GetProcessRoutes returns every registered route.
func (r *Registry) GetProcessRoutes() []ProcessRoute {
	r.routesMu.Lock()
	defer r.routesMu.Unlock()
	out := make([]ProcessRoute, len(r.routes))
	copy(out, r.routes)
	return out
}

// GetProvider looks up a provider's connection config by id.
func (r *Registry) GetProvider(id string) (ProviderConfig, error) {
	p, ok := r.providers.Get(id)
	if !ok {
		return ProviderConfig{}, errs.ManifestError("provider", id)
	}
	return p, nil
}

// GetCompatModule lazily builds (and caches) the compat module for a
// provider family.
func (r *Registry) GetCompatModule(family string) (interface{}, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if c, ok := r.compatCache[family]; ok {
		return c, nil
	}
	if r.factories.CompatModule == nil {
		return nil, errs.ManifestError("compat module", family)
	}
	c, err := r.factories.CompatModule(family)
	if err != nil {
		return nil, fmt.Errorf("registry: building compat module %q: %w", family, err)
	}
	r.compatCache[family] = c
	return c, nil
}

// GetMCPServer looks up (and lazily connects) the MCP server registered
// under id.
func (r *Registry) GetMCPServer(id string) (interface{}, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if c, ok := r.mcpCache[id]; ok {
		return c, nil
	}
	cfg, ok := r.mcpServers.Get(id)
	if !ok {
		return nil, errs.ManifestError("mcp server", id)
	}
	if r.factories.MCPServer == nil {
		return nil, errs.ManifestError("mcp server factory", id)
	}
	inst, err := r.factories.MCPServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: connecting mcp server %q: %w", id, err)
	}
	r.mcpCache[id] = inst
	return inst, nil
}

// GetMCPServers looks up several MCP servers by id, failing fast on the
// first missing one.
func (r *Registry) GetMCPServers(ids []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		inst, err := r.GetMCPServer(id)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// GetVectorStore lazily builds (and caches) the vector store registered
// under id.
func (r *Registry) GetVectorStore(id string) (interface{}, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if v, ok := r.vectorCache[id]; ok {
		return v, nil
	}
	cfg, ok := r.vectors.Get(id)
	if !ok {
		return nil, errs.ManifestError("vector store", id)
	}
	if r.factories.VectorStore == nil {
		return nil, errs.ManifestError("vector store factory", id)
	}
	inst, err := r.factories.VectorStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: building vector store %q: %w", id, err)
	}
	r.vectorCache[id] = inst
	return inst, nil
}

// GetVectorStoreCompat returns the driver identifier for a vector store,
// used by the injector to pick its query-construction dialect.
func (r *Registry) GetVectorStoreCompat(id string) (string, error) {
	cfg, ok := r.vectors.Get(id)
	if !ok {
		return "", errs.ManifestError("vector store", id)
	}
	return cfg.Driver, nil
}

// GetEmbeddingProvider lazily builds (and caches) the embedding provider
// registered under id.
func (r *Registry) GetEmbeddingProvider(id string) (interface{}, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if e, ok := r.embedCache[id]; ok {
		return e, nil
	}
	cfg, ok := r.embeddings.Get(id)
	if !ok {
		return nil, errs.ManifestError("embedding provider", id)
	}
	if r.factories.EmbeddingProvider == nil {
		return nil, errs.ManifestError("embedding provider factory", id)
	}
	inst, err := r.factories.EmbeddingProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: building embedding provider %q: %w", id, err)
	}
	r.embedCache[id] = inst
	return inst, nil
}

// GetEmbeddingCompat returns the driver identifier for an embedding
// provider.
func (r *Registry) GetEmbeddingCompat(id string) (string, error) {
	cfg, ok := r.embeddings.Get(id)
	if !ok {
		return "", errs.ManifestError("embedding provider", id)
	}
	return cfg.Driver, nil
}

// GetTool lazily builds (and caches) the function tool registered under
// name.
func (r *Registry) GetTool(name string) (Tool, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if t, ok := r.toolCache[name]; ok {
		return t, nil
	}
	desc, ok := r.tools.Get(name)
	if !ok {
		return nil, errs.ManifestError("tool", name)
	}
	if r.factories.Tool == nil {
		return nil, errs.ManifestError("tool factory", name)
	}
	inst, err := r.factories.Tool(desc)
	if err != nil {
		return nil, fmt.Errorf("registry: building tool %q: %w", name, err)
	}
	r.toolCache[name] = inst
	return inst, nil
}

// GetTools looks up several function tools by name, failing fast on the
// first missing one.
func (r *Registry) GetTools(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, err := r.GetTool(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ToolSpec returns the declared schema for a registered tool, used by
// collectTools to build the provider-facing Tool declaration without
// instantiating the handler.
func (r *Registry) ToolSpec(name string) (types.Tool, error) {
	desc, ok := r.tools.Get(name)
	if !ok {
		return types.Tool{}, errs.ManifestError("tool", name)
	}
	return types.Tool{Name: desc.Name, Description: desc.Description, ParametersJSONSchema: desc.ParametersJSONSchema}, nil
}
