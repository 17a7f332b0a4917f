package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/interviewrt/core/internal/clockid"
)

// LocalStore writes blobs under a root directory on local disk.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "./var/storage"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: mkdir root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Put(_ context.Context, prefix, suggestedName string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, filepath.Clean("/"+prefix))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir: %w", err)
	}

	ext := filepath.Ext(suggestedName)
	base := strings.TrimSuffix(filepath.Base(suggestedName), ext)
	if base == "" {
		base = "blob"
	}
	name := fmt.Sprintf("%s-%s%s", base, clockid.NewNonce(), ext)
	ref := filepath.Join(prefix, name)
	full := filepath.Join(s.root, ref)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("objectstore: create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("objectstore: write: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("objectstore: %s: %w", ref, os.ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.root, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStore) URL(ref string) string {
	return "/storage/" + ref
}

// Root exposes the backing directory so the HTTP surface can serve
// blobs directly.
func (s *LocalStore) Root() string { return s.root }

// AbsPath exposes the local filesystem path for a ref, used by the
// recording mux which shells out to ffmpeg and needs a real path.
func (s *LocalStore) AbsPath(ref string) string {
	return filepath.Join(s.root, ref)
}
