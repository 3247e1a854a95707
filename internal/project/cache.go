package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	cachePrefix       = "cmbworks:bills"
	invalidateChannel = "cmbworks.bills.invalidate"
)

// Cache keeps computed bill snapshots in Redis. Each project has its own
// version counter; a mutation of one project bumps only that counter, so the
// snapshots of other projects stay warm.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:version", cachePrefix, id)
}

// Version returns the snapshot version of project id, starting at 1.
func (c *Cache) Version(ctx context.Context, id uuid.UUID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent first bump.
		if err := c.client.SetNX(ctx, versionKey(id), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(id)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// SnapshotKey names the cached snapshots of project id at its current
// version. Extra parts narrow the key.
func (c *Cache) SnapshotKey(ctx context.Context, id uuid.UUID, parts ...string) (string, error) {
	joined := strings.Join(append([]string{cachePrefix, id.String()}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the version of project id and tells other instances.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(id)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, invalidateChannel, fmt.Sprintf("%s %d", id, ver)).Err()
}

// ListenForInvalidation applies bumps published by other instances until ctx
// ends. A published version never lowers the local one.
func (c *Cache) ListenForInvalidation(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	pubsub := c.client.Subscribe(ctx, invalidateChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, ver, err := parseInvalidation(msg.Payload)
				if err != nil {
					continue
				}
				_ = c.applyVersion(ctx, id, ver)
			}
		}
	}()
}

func (c *Cache) applyVersion(ctx context.Context, id uuid.UUID, ver int64) error {
	current, err := c.client.Get(ctx, versionKey(id)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if current >= ver {
		return nil
	}
	return c.client.Set(ctx, versionKey(id), ver, 0).Err()
}

func parseInvalidation(payload string) (uuid.UUID, int64, error) {
	rawID, rawVer, ok := strings.Cut(payload, " ")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("cache: malformed invalidation %q", payload)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, 0, err
	}
	ver, err := strconv.ParseInt(rawVer, 10, 64)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return id, ver, nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
