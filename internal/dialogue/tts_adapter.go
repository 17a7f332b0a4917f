package dialogue

import (
	"context"

	"github.com/interviewrt/core/internal/ttscache"
)

// ttsCacheAdapter narrows *ttscache.Cache's AudioRef-returning
// Synthesize to the Synthesizer interface this package depends on.
type ttsCacheAdapter struct {
	cache *ttscache.Cache
}

// NewTTSCacheAdapter wraps a TTS Cache (C8) as a dialogue.Synthesizer.
func NewTTSCacheAdapter(cache *ttscache.Cache) Synthesizer {
	return ttsCacheAdapter{cache: cache}
}

func (a ttsCacheAdapter) Synthesize(ctx context.Context, text, voice, language string) (Audio, error) {
	ref, err := a.cache.Synthesize(ctx, text, voice, language)
	if err != nil {
		return Audio{}, err
	}
	return Audio{URL: ref.URL, Format: ref.Format}, nil
}
