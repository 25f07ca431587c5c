package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatwarden/internal/middleware"
	"chatwarden/internal/models"

	"github.com/redis/go-redis/v9"
)

const activeRulesKeyPrefix = "chat:%d:active_rules"

// DefaultRuleTTL applies when RULE_CACHE_TTL_SECONDS is zero.
const DefaultRuleTTL = time.Minute

// ActiveRulesKey is the Redis key holding a chat's evaluation-ordered active rules.
func ActiveRulesKey(chatID int64) string {
	return fmt.Sprintf(activeRulesKeyPrefix, chatID)
}

// RuleLoader reads a chat's active rules from the store.
type RuleLoader func(ctx context.Context, chatID int64) ([]models.Rule, error)

// RuleCache is a read-through cache of active rule sets. A nil Redis client
// makes every call go straight to the loader.
type RuleCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRuleCache creates a RuleCache.
func NewRuleCache(rdb *redis.Client, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = DefaultRuleTTL
	}
	return &RuleCache{rdb: rdb, ttl: ttl}
}

// ActiveRules returns the cached rule set or loads and stores it.
// Redis failures degrade to the loader.
func (c *RuleCache) ActiveRules(ctx context.Context, chatID int64, load RuleLoader) ([]models.Rule, error) {
	if c == nil || c.rdb == nil {
		return load(ctx, chatID)
	}

	key := ActiveRulesKey(chatID)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rules []models.Rule
		if jsonErr := json.Unmarshal(raw, &rules); jsonErr == nil {
			return rules, nil
		}
		middleware.Logger.WarnContext(ctx, "discarding corrupt rule cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		middleware.Logger.WarnContext(ctx, "rule cache read failed", slog.String("error", err.Error()))
	}

	rules, err := load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(rules); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "rule cache write failed", slog.String("error", err.Error()))
		}
	}
	return rules, nil
}

// Invalidate drops the cached rule set after any rule change in the chat.
func (c *RuleCache) Invalidate(ctx context.Context, chatID int64) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, ActiveRulesKey(chatID)).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "rule cache invalidation failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}
