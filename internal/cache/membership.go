// Package cache keeps hot lookups in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/share"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of *redis.Client the cache relies on.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// generationTTL keeps a user's membership generation around far longer than
// any lookup takes.
const generationTTL = 24 * time.Hour

// fillScript stores a membership list only if the user's generation still
// equals the one read before the source was queried.
// KEYS: membership key, generation key. ARGV: generation, value, ttl ms.
const fillScript = `
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`

// invalidateScript bumps the generation of every user and drops their cached
// list. KEYS alternate membership key and generation key. ARGV: generation ttl ms.
const invalidateScript = `
for i = 1, #KEYS, 2 do
	redis.call('INCR', KEYS[i + 1])
	redis.call('PEXPIRE', KEYS[i + 1], ARGV[1])
	redis.call('DEL', KEYS[i])
end
return #KEYS / 2
`

// NewRedisClient connects to Redis, or returns nil when Redis is disabled.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// MembershipCache serves a user's group ids from Redis and falls back to the
// wrapped source on a miss or when Redis is unavailable. Every invalidation
// bumps a per-user generation, and a fill computed under an older generation
// is dropped, so a list read before a membership change never outlives it.
type MembershipCache struct {
	redis  redisClient
	source share.MembershipSource
	ttl    time.Duration
	logger *slog.Logger
}

// NewMembershipCache wraps source. A nil client disables caching.
func NewMembershipCache(client *redis.Client, source share.MembershipSource, ttl time.Duration, logger *slog.Logger) *MembershipCache {
	c := &MembershipCache{source: source, ttl: ttl, logger: logger}
	if client != nil {
		c.redis = client
	}
	return c
}

func membershipKey(userID string) string {
	return fmt.Sprintf("membership:%s", userID)
}

func generationKey(userID string) string {
	return fmt.Sprintf("membership_gen:%s", userID)
}

func (c *MembershipCache) GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	if c.redis == nil {
		return c.source.GetUserGroupIDs(ctx, userID)
	}

	key := membershipKey(userID)
	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		ids, decodeErr := decodeIDs(val)
		if decodeErr == nil {
			return ids, nil
		}
		c.logger.WarnContext(ctx, "Discarding malformed membership cache entry", "user_id", userID, "error", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "Membership cache read failed", "user_id", userID, "error", err)
	}

	gen, genErr := c.generation(ctx, userID)
	if genErr != nil {
		c.logger.WarnContext(ctx, "Membership generation read failed", "user_id", userID, "error", genErr)
	}

	ids, err := c.source.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return ids, nil
	}

	stored, err := c.redis.Eval(ctx, fillScript, []string{key, generationKey(userID)}, gen, encodeIDs(ids), c.ttl.Milliseconds()).Int64()
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "Membership cache write failed", "user_id", userID, "error", err)
	case stored == 0:
		c.logger.DebugContext(ctx, "Membership changed during lookup, not caching", "user_id", userID)
	}
	return ids, nil
}

func (c *MembershipCache) generation(ctx context.Context, userID string) (string, error) {
	gen, err := c.redis.Get(ctx, generationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// Invalidate drops the cached membership of the given users and discards
// any lookup for them that is still in flight.
func (c *MembershipCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if c.redis == nil || len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, 2*len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, membershipKey(id), generationKey(id))
	}
	if err := c.redis.Eval(ctx, invalidateScript, keys, generationTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate membership cache: %w", err)
	}
	return nil
}

func encodeIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func decodeIDs(val string) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if val == "" {
		return ids, nil
	}
	for _, part := range strings.Split(val, ",") {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
