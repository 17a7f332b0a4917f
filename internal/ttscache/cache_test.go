package ttscache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls int32
	delay time.Duration
}

func (f *fakeProvider) Synthesize(ctx context.Context, text, voice, language string) ([]byte, string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return []byte("audio-for-" + text), "mp3", nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.example/" + key, nil
}

func TestCacheMissThenHit(t *testing.T) {
	provider := &fakeProvider{}
	cache := New(provider, NewMemoryStore(), fakePublisher{}, time.Second, nil)

	ref1, err := cache.Synthesize(context.Background(), "hello", "v1", "en")
	require.NoError(t, err)
	require.Equal(t, "mp3", ref1.Format)

	ref2, err := cache.Synthesize(context.Background(), "hello", "v1", "en")
	require.NoError(t, err)
	require.Equal(t, ref1.URL, ref2.URL)
	require.EqualValues(t, 1, provider.calls)
}

func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	provider := &fakeProvider{delay: 50 * time.Millisecond}
	cache := New(provider, NewMemoryStore(), fakePublisher{}, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Synthesize(context.Background(), "concurrent text", "v1", "en")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, provider.calls)
}
