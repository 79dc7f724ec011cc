package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errNoRedisClient = errors.New("redis client not configured")

// RedisCache stores every entry as a hash and tracks the data keys in an index set.
// Redis expiry is set to the entry lifetime plus a retention window,
// so that expired entries stay around for stale fallbacks.
type RedisCache struct {
	client    redis.UniversalClient
	addr      string
	prefix    string
	retention time.Duration
}

// NewRedisCache creates a Redis backed provider.
// The retention is how long an entry is kept after it has expired.
func NewRedisCache(client redis.UniversalClient, prefix string, retention time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "portal_cache"
	}
	if retention < 0 {
		retention = 0
	}
	addr := ""
	if c, ok := client.(*redis.Client); ok && c != nil {
		addr = c.Options().Addr
	}
	return &RedisCache{client: client, addr: addr, prefix: prefix, retention: retention}
}

func (s *RedisCache) Name() string {
	return "redis"
}

func (s *RedisCache) Location() string {
	if s.addr == "" {
		return s.prefix
	}
	return s.addr + "/" + s.prefix
}

func (s *RedisCache) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	if s.client == nil {
		return CacheEntry{}, false, errNoRedisClient
	}
	fields, err := s.client.HGetAll(ctx, s.dataKey(key)).Result()
	if err == redis.Nil || (err == nil && len(fields) == 0) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry, err := entryFromHash(fields)
	if err != nil {
		return CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (s *RedisCache) Put(ctx context.Context, ce CacheEntry) error {
	if s.client == nil {
		return errNoRedisClient
	}
	ttl := ce.Expires.Sub(ce.CreatedAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	dataKey := s.dataKey(ce.Key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, dataKey)
	pipe.HSet(ctx, dataKey,
		"key", ce.Key,
		"created_at", ce.CreatedAt.UnixMilli(),
		"expires", ce.Expires.UnixMilli(),
		"bytes", ce.Bytes,
	)
	if ttl > 0 {
		pipe.PExpire(ctx, dataKey, ttl)
	}
	pipe.SAdd(ctx, s.indexKey(), dataKey)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCache) Purge(ctx context.Context, key string) (bool, error) {
	if s.client == nil {
		return false, errNoRedisClient
	}
	dataKey := s.dataKey(key)
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, dataKey)
	pipe.SRem(ctx, s.indexKey(), dataKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (s *RedisCache) Clear(ctx context.Context) error {
	if s.client == nil {
		return errNoRedisClient
	}
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, s.indexKey())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisCache) All(ctx context.Context, prefix string) ([]CacheEntry, error) {
	entries := make([]CacheEntry, 0)
	if s.client == nil {
		return entries, errNoRedisClient
	}
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return entries, err
	}
	if len(keys) == 0 {
		return entries, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return entries, err
	}
	gone := make([]interface{}, 0)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			gone = append(gone, keys[i])
			continue
		}
		entry, err := entryFromHash(fields)
		if err != nil || !strings.HasPrefix(entry.Key, prefix) {
			continue
		}
		entries = append(entries, entry)
	}
	// entries dropped by redis expiry still sit in the index
	if len(gone) > 0 {
		s.client.SRem(ctx, s.indexKey(), gone...)
	}
	sortByExpiry(entries)
	return entries, nil
}

func (s *RedisCache) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisCache) dataKey(cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return fmt.Sprintf("%s:data:%s", s.prefix, hex.EncodeToString(sum[:]))
}

func (s *RedisCache) indexKey() string {
	return fmt.Sprintf("%s:index:all", s.prefix)
}

func entryFromHash(fields map[string]string) (CacheEntry, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("malformed created_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires"], 10, 64)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("malformed expires: %w", err)
	}
	return CacheEntry{
		Key:       fields["key"],
		CreatedAt: time.UnixMilli(created),
		Expires:   time.UnixMilli(expires),
		Bytes:     []byte(fields["bytes"]),
	}, nil
}
