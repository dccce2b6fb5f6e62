package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKeyPrefix = "report:version:"
	bumpChannel      = "report.bump"
)

// Cache stores report results in Redis under a per-company version. Bumping
// the version orphans every cached report of that company.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	// versions mirrors the Redis counters while a bump listener runs.
	listening atomic.Bool
	mu        sync.RWMutex
	versions  map[string]int64
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, versions: make(map[string]int64)}
}

// Version returns the company's cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context, company string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if c.listening.Load() {
		c.mu.RLock()
		ver, ok := c.versions[company]
		c.mu.RUnlock()
		if ok {
			return ver, nil
		}
	}
	key := versionKeyPrefix + company
	if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
		return 0, err
	}
	ver, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0, err
	}
	c.remember(company, ver)
	return ver, nil
}

// BuildKey composes a versioned cache key for one company.
func (c *Cache) BuildKey(ctx context.Context, company string, parts ...string) (string, error) {
	base := strings.Join(append([]string{"report", company}, parts...), ":")
	if c == nil || c.client == nil {
		return base, nil
	}
	ver, err := c.Version(ctx, company)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// FetchJSON loads a cached value into dest or populates it with loader.
// Concurrent misses for the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("reporting: cache loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, loader, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	res := c.group.DoChan(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out := <-res:
		if out.Err != nil {
			return out.Err
		}
		return json.Unmarshal(out.Val.([]byte), dest)
	}
}

func load(ctx context.Context, loader func(context.Context) (any, error), dest any) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates a company's reports and announces the new version.
func (c *Cache) Bump(ctx context.Context, company string) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKeyPrefix+company).Result()
	if err != nil {
		return err
	}
	c.remember(company, ver)
	return c.client.Publish(ctx, bumpChannel, company+":"+strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other processes
// until ctx is cancelled. While it runs, versions are served from memory.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				company, ver, ok := parseBump(msg.Payload)
				if !ok {
					c.forget()
					continue
				}
				c.remember(company, ver)
			}
		}
	}()
	return nil
}

func (c *Cache) remember(company string, ver int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ver > c.versions[company] {
		c.versions[company] = ver
	}
}

func (c *Cache) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = make(map[string]int64)
}

func parseBump(payload string) (string, int64, bool) {
	idx := strings.LastIndexByte(payload, ':')
	if idx <= 0 {
		return "", 0, false
	}
	ver, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return payload[:idx], ver, true
}
