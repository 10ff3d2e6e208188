// ABOUTME: Redis-backed cache around another narrator.
// ABOUTME: Identical summaries reuse the stored narrative until the TTL expires.
package narrative

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/medtrack/internal/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a cached narrative stays valid.
const DefaultCacheTTL = 24 * time.Hour

const cachePrefix = "medtrack:narrative:"

// Cached wraps a narrator with a Redis cache. Redis failures are logged and
// bypassed; they never fail a Summarize call.
type Cached struct {
	next   report.Narrator
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

var _ report.Narrator = (*Cached)(nil)

// NewCached creates a caching narrator.
func NewCached(next report.Narrator, client *redis.Client, ttl time.Duration, log zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, client: client, ttl: ttl, log: log.With().Str("component", "narrative_cache").Logger()}
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// cacheKeyData is the hashed identity of a summary. Window bounds are
// reduced to dates so reports composed minutes apart share an entry.
type cacheKeyData struct {
	RecipientID string         `json:"recipient_id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Rate        int            `json:"rate"`
	Total       int            `json:"total"`
	Taken       int            `json:"taken"`
	Metrics     report.Metrics `json:"metrics"`
	Locale      string         `json:"locale"`
}

// CacheKey returns the Redis key for a summary and locale.
func CacheKey(data report.Summary, locale string) (string, error) {
	raw, err := json.Marshal(cacheKeyData{
		RecipientID: data.RecipientID,
		From:        data.Period.Start.Format("2006-01-02"),
		To:          data.Period.End.Format("2006-01-02"),
		Rate:        data.Adherence.Rate,
		Total:       data.Adherence.TotalDoses,
		Taken:       data.Adherence.TakenDoses,
		Metrics:     data.Metrics,
		Locale:      locale,
	})
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return cachePrefix + hex.EncodeToString(sum[:]), nil
}

// Summarize implements report.Narrator.
func (c *Cached) Summarize(ctx context.Context, data report.Summary, locale string) (report.Narrative, error) {
	key, err := CacheKey(data, locale)
	if err != nil {
		return c.next.Summarize(ctx, data, locale)
	}

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var n report.Narrative
		if jerr := json.Unmarshal([]byte(cached), &n); jerr == nil && !n.Blank() {
			c.log.Debug().Str("key", key).Msg("narrative cache hit")
			return n, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding unreadable cached narrative")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Msg("narrative cache read failed")
	}

	n, err := c.next.Summarize(ctx, data, locale)
	if err != nil {
		return n, err
	}
	if n.Blank() {
		return n, nil
	}

	raw, err := json.Marshal(n)
	if err != nil {
		return n, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("narrative cache write failed")
	}
	return n, nil
}
