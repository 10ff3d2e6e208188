// ABOUTME: Tests for the Redis narrative cache using miniredis.
// ABOUTME: Covers hits, misses, error passthrough, and Redis outages.
package narrative

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/harperreed/medtrack/internal/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type countingNarrator struct {
	calls int
	err   error
}

func (c *countingNarrator) Summarize(ctx context.Context, data report.Summary, locale string) (report.Narrative, error) {
	c.calls++
	if c.err != nil {
		return report.Narrative{}, c.err
	}
	return report.Narrative{Summary: "call " + locale, Recommendations: []string{"rest"}}, nil
}

func newCached(t *testing.T, next report.Narrator) (*Cached, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCached(next, client, time.Hour, zerolog.Nop()), mr
}

func TestCachedHitAndMiss(t *testing.T) {
	next := &countingNarrator{}
	c, mr := newCached(t, next)
	ctx := context.Background()
	data := sampleSummary()

	first, err := c.Summarize(ctx, data, "en")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	second, err := c.Summarize(ctx, data, "en")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("next called %d times, want 1", next.calls)
	}
	if first.Summary != second.Summary {
		t.Errorf("cached narrative differs: %q vs %q", first.Summary, second.Summary)
	}

	key, err := CacheKey(data, "en")
	if err != nil {
		t.Fatalf("CacheKey failed: %v", err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	if _, err := c.Summarize(ctx, data, "ko"); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if next.calls != 2 {
		t.Errorf("a different locale should miss the cache, calls = %d", next.calls)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := c.Summarize(ctx, data, "en"); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if next.calls != 3 {
		t.Errorf("expired entry should miss the cache, calls = %d", next.calls)
	}
}

func TestCacheKeyIgnoresTimeOfDay(t *testing.T) {
	a := sampleSummary()
	b := sampleSummary()
	b.Period.Start = b.Period.Start.Add(30 * time.Minute)
	b.Period.End = b.Period.End.Add(30 * time.Minute)

	ka, _ := CacheKey(a, "en")
	kb, _ := CacheKey(b, "en")
	if ka != kb {
		t.Error("summaries on the same dates should share a key")
	}

	b.Adherence.TakenDoses++
	if kc, _ := CacheKey(b, "en"); kc == ka {
		t.Error("different adherence must change the key")
	}
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	next := &countingNarrator{err: errors.New("rate limited")}
	c, mr := newCached(t, next)

	if _, err := c.Summarize(context.Background(), sampleSummary(), "en"); err == nil {
		t.Fatal("expected error from next narrator")
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("errors must not be cached, keys = %v", keys)
	}
}

func TestCachedBypassesRedisOutage(t *testing.T) {
	next := &countingNarrator{}
	c, mr := newCached(t, next)
	mr.Close()

	n, err := c.Summarize(context.Background(), sampleSummary(), "en")
	if err != nil {
		t.Fatalf("Redis outage must not fail Summarize: %v", err)
	}
	if n.Summary != "call en" || next.calls != 1 {
		t.Errorf("narrative = %+v, calls = %d", n, next.calls)
	}
}
