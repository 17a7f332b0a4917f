// Package ttscache synthesizes and caches question audio, keyed by
// text/voice/language, coalescing concurrent misses for the same key
// into a single upstream call. The backing store is Redis, or an
// in-process map when REDIS_URL is unset.
package ttscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/interviewrt/core/internal/observability"
)

const cacheTTL = 24 * time.Hour

// AudioRef is what the Dialogue Controller attaches to a TurnRecord.
type AudioRef struct {
	URL    string
	Format string
}

// Provider synthesizes audio for text; calls are expected to carry
// their own deadline via ctx.
type Provider interface {
	Synthesize(ctx context.Context, text, voice, language string) (audio []byte, format string, err error)
}

// BackingStore is the key/value seam between Redis and the in-process
// fallback.
type BackingStore interface {
	Get(ctx context.Context, key string) ([]byte, string, bool, error)
	Set(ctx context.Context, key string, audio []byte, format string, ttl time.Duration) error
}

// AudioPublisher persists synthesized audio bytes somewhere a browser
// can fetch it from (objectstore) and returns a URL.
type AudioPublisher interface {
	Publish(ctx context.Context, key string, audio []byte, format string) (url string, err error)
}

// Cache is the coalesced, TTL'd front for a TTS Provider.
type Cache struct {
	provider  Provider
	store     BackingStore
	publisher AudioPublisher
	deadline  time.Duration
	metrics   *observability.Metrics

	group singleflight.Group
}

func New(provider Provider, store BackingStore, publisher AudioPublisher, deadline time.Duration, metrics *observability.Metrics) *Cache {
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	return &Cache{provider: provider, store: store, publisher: publisher, deadline: deadline, metrics: metrics}
}

// Key computes the cache key for a (text, voice, language) tuple.
func Key(text, voice, language string) string {
	sum := sha256.Sum256([]byte(text + "||" + voice + "||" + language))
	return hex.EncodeToString(sum[:])
}

// Synthesize returns a cached AudioRef or synthesizes, publishes, and
// caches a new one. Concurrent callers for the same key share one
// upstream call via singleflight, so each key only ever has one
// writer.
func (c *Cache) Synthesize(ctx context.Context, text, voice, language string) (AudioRef, error) {
	key := Key(text, voice, language)

	if audio, format, ok, err := c.store.Get(ctx, key); err == nil && ok {
		c.observe("hit")
		url, perr := c.publisher.Publish(ctx, key, audio, format)
		if perr != nil {
			return AudioRef{}, perr
		}
		return AudioRef{URL: url, Format: format}, nil
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		c.observe("miss")
		callCtx, cancel := context.WithTimeout(ctx, c.deadline)
		defer cancel()

		audio, format, err := c.provider.Synthesize(callCtx, text, voice, language)
		if err != nil {
			return nil, fmt.Errorf("ttscache: synthesize: %w", err)
		}
		if err := c.store.Set(ctx, key, audio, format, cacheTTL); err != nil {
			return nil, fmt.Errorf("ttscache: cache put: %w", err)
		}
		url, err := c.publisher.Publish(ctx, key, audio, format)
		if err != nil {
			return nil, err
		}
		return AudioRef{URL: url, Format: format}, nil
	})
	if shared {
		c.observe("coalesced")
	}
	if err != nil {
		return AudioRef{}, err
	}
	return res.(AudioRef), nil
}

func (c *Cache) observe(result string) {
	if c.metrics != nil {
		c.metrics.ObserveTTSCacheResult(result)
	}
}
