// Package objectstore provides content-addressed storage for
// recordings, proctoring snapshots, and evaluation reports, with a
// local-disk backend for dev and an S3 backend for production,
// selected by STORAGE_DRIVER=local|s3.
package objectstore

import (
	"context"
	"io"
)

// Store writes and reads content-addressed blobs. Every Put call
// mints a fresh, random-token-suffixed name so concurrent writers
// never collide and overwrites never happen.
type Store interface {
	// Put writes r under the given logical prefix (e.g.
	// "recordings/{session_id}") and returns an opaque ref that Get
	// and Delete accept.
	Put(ctx context.Context, prefix, suggestedName string, r io.Reader) (ref string, err error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	// URL returns a reference usable by a client to fetch the object,
	// when the backend can produce one without a round trip (local
	// disk returns a file path the server itself serves;  S3 returns
	// the bucket key an admin surface can presign).
	URL(ref string) string
}

// New resolves the configured backend.
func New(driver string, localRoot string, s3cfg S3Config) (Store, error) {
	switch driver {
	case "s3":
		return NewS3Store(s3cfg)
	default:
		return NewLocalStore(localRoot)
	}
}
