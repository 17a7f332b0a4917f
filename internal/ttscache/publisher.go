package ttscache

import (
	"bytes"
	"context"
	"fmt"

	"github.com/interviewrt/core/internal/objectstore"
)

// ObjectStorePublisher writes synthesized audio through the shared
// objectstore.Store so the browser can fetch it by URL.
type ObjectStorePublisher struct {
	Store objectstore.Store
}

func (p ObjectStorePublisher) Publish(ctx context.Context, key string, audio []byte, format string) (string, error) {
	name := fmt.Sprintf("%s.%s", key, format)
	ref, err := p.Store.Put(ctx, "tts", name, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("ttscache: publish audio: %w", err)
	}
	return p.Store.URL(ref), nil
}
