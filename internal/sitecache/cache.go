package sitecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "sitebuilder:site:"
	DefaultTTL = time.Hour
	// DefaultInvalidationHold is how long an invalidated key refuses new entries.
	DefaultInvalidationHold = 10 * time.Second
)

// invalidatedMarker replaces an invalidated entry. Set only writes absent keys, so a reader that loaded the
// store before the invalidation cannot put the stale document back while the marker lives.
var invalidatedMarker = []byte("sitebuilder:invalidated")

// Entry is a cached published site.
type Entry struct {
	ProjectID string `json:"project_id"`
	HTML      string `json:"html"`
}

// Cache stores published sites by their lookup key, which is a subdomain or a project id.
// Set never overwrites a live entry; Invalidate is the only way to replace one.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Invalidate(ctx context.Context, keys ...string) error
}

var (
	_ Cache = Noop{}
	_ Cache = (*RedisCache)(nil)
)

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (Noop) Set(context.Context, string, Entry) error {
	return nil
}

func (Noop) Invalidate(context.Context, ...string) error {
	return nil
}

// RedisCache keeps compressed entries in redis with a fixed expiry.
type RedisCache struct {
	client           *redis.Client
	codec            Codec
	ttl              time.Duration
	invalidationHold time.Duration
}

// RedisConfig configures NewRedisCache.
type RedisConfig struct {
	Addr             string
	TTL              time.Duration
	InvalidationHold time.Duration
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: "",
		DB:       0,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sitecache: ping redis: %w", err)
	}
	cache := NewRedisCacheWithClient(client, NewBrotli(), config.TTL)
	if config.InvalidationHold > 0 {
		cache.invalidationHold = config.InvalidationHold
	}
	return cache, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, codec Codec, ttl time.Duration) *RedisCache {
	if codec == nil {
		codec = Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, codec: codec, ttl: ttl, invalidationHold: DefaultInvalidationHold}
}

func (cache *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	payload, err := cache.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	if isInvalidatedMarker(payload) {
		return Entry{}, false, nil
	}
	decoded, err := cache.codec.Decode(payload)
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(decoded, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (cache *RedisCache) Set(ctx context.Context, key string, entry Entry) error {
	marshaled, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	encoded, err := cache.codec.Encode(marshaled)
	if err != nil {
		return err
	}
	return cache.client.SetNX(ctx, redisKey(key), encoded, cache.ttl).Err()
}

func (cache *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	redisKeys := invalidationKeys(keys)
	if len(redisKeys) == 0 {
		return nil
	}
	_, err := cache.client.Pipelined(ctx, func(pipeline redis.Pipeliner) error {
		for _, key := range redisKeys {
			pipeline.Set(ctx, key, invalidatedMarker, cache.invalidationHold)
		}
		return nil
	})
	return err
}

func invalidationKeys(keys []string) []string {
	redisKeys := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		normalized := redisKey(key)
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		redisKeys = append(redisKeys, normalized)
	}
	return redisKeys
}

func isInvalidatedMarker(payload []byte) bool {
	return bytes.Equal(payload, invalidatedMarker)
}

// Close releases the redis connection pool.
func (cache *RedisCache) Close() error {
	return cache.client.Close()
}

func redisKey(key string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(key))
}
