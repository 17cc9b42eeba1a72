package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:access:version"

// Cache stores resolved access contexts in Redis behind a global version so
// that role edits can invalidate every user at once, and a per-user
// generation for single-user invalidation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Stamp pins the versions observed before a context is loaded. A context
// written under a stale stamp is never read back.
type Stamp struct {
	Global int64
	User   int64
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func userGenerationKey(userID string) string {
	return "rbac:access:gen:" + userID
}

func (s Stamp) key(userID string) string {
	return fmt.Sprintf("rbac:access:%d:%d:%s", s.Global, s.User, userID)
}

// Stamp reads the current global version and the user's generation.
func (c *Cache) Stamp(ctx context.Context, userID string) (Stamp, error) {
	if !c.enabled() {
		return Stamp{}, nil
	}
	vals, err := c.client.MGet(ctx, cacheVersionKey, userGenerationKey(userID)).Result()
	if err != nil {
		return Stamp{}, err
	}
	var st Stamp
	if st.Global, err = counter(vals[0]); err != nil {
		return Stamp{}, err
	}
	if st.User, err = counter(vals[1]); err != nil {
		return Stamp{}, err
	}
	return st, nil
}

func counter(v any) (int64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("rbac cache: unexpected counter %T", v)
	}
}

// Get returns the context cached under st; the boolean is false on a miss.
func (c *Cache) Get(ctx context.Context, st Stamp, userID string) (AccessContext, bool, error) {
	if !c.enabled() {
		return AccessContext{}, false, nil
	}
	payload, err := c.client.Get(ctx, st.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AccessContext{}, false, nil
	}
	if err != nil {
		return AccessContext{}, false, err
	}
	var ac AccessContext
	if err := json.Unmarshal(payload, &ac); err != nil {
		return AccessContext{}, false, err
	}
	return ac, true, nil
}

// Set stores a context under the stamp read before it was loaded.
func (c *Cache) Set(ctx context.Context, st Stamp, ac AccessContext) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(ac)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, st.key(ac.UserID), raw, c.ttl).Err()
}

// Delete invalidates a single user's cached context by advancing its generation.
func (c *Cache) Delete(ctx context.Context, userID string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, userGenerationKey(userID)).Err()
}

// Bump invalidates every cached context by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
