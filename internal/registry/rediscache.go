package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ManifestCache is an optional Redis-backed read-through cache for the
// merged manifest set LoadAll produces, grounded on RedisCache
// (agent/cache_redis.go): same Get/Set/key-prefix shape,
// narrowed to the one value this registry needs to cache. Lets a fleet of
// adapterd replicas skip re-parsing an unchanged manifest directory on
// every restart.
type ManifestCache struct {
	client redis.UniversalClient
	prefix string
	ttl time.Duration
}

// NewManifestCache connects to addr and returns a ManifestCache, pinging
// once to fail fast on a bad address.
func NewManifestCache(addr, password string, db int, ttl time.Duration) (*ManifestCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("registry: connecting to manifest cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ManifestCache{client: client, prefix: "llm-adapter:manifests", ttl: ttl}, nil
}

// NewManifestCacheFromClient wraps an already-constructed client (used by
// tests against miniredis).
func NewManifestCacheFromClient(client redis.UniversalClient, ttl time.Duration) *ManifestCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ManifestCache{client: client, prefix: "llm-adapter:manifests", ttl: ttl}
}

func (c *ManifestCache) key(dirFingerprint string) string {
	return fmt.Sprintf("%s:%s", c.prefix, dirFingerprint)
}

// Get returns the cached snapshot for a directory fingerprint, or
// found=false on a cache miss.
func (c *ManifestCache) Get(ctx context.Context, dirFingerprint string) (snapshot, bool, error) {
	raw, err := c.client.Get(ctx, c.key(dirFingerprint)).Result()
	if err == redis.Nil {
		return snapshot{}, false, nil
	}
	if err != nil {
		return snapshot{}, false, fmt.Errorf("registry: manifest cache get: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return snapshot{}, false, fmt.Errorf("registry: manifest cache decode: %w", err)
	}
	return snap, true, nil
}

// Set stores a snapshot for a directory fingerprint with the cache's TTL.
func (c *ManifestCache) Set(ctx context.Context, dirFingerprint string, snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: manifest cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(dirFingerprint), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("registry: manifest cache set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *ManifestCache) Close() error { return c.client.Close() }

// snapshot is the serializable union of every manifest-declared
// registration, the unit a ManifestCache stores per directory.
type snapshot struct {
	Providers []ProviderConfig `json:"providers"`
	MCPServers []MCPServerConfig `json:"mcpServers"`
	VectorStores []VectorStoreConfig `json:"vectorStores"`
	EmbeddingProviders []EmbeddingProviderConfig `json:"embeddingProviders"`
	Tools []ToolDescriptor `json:"tools"`
}
