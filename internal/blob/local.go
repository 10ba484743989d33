package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local writes blobs under a directory served as static files.
type Local struct {
	root    string
	baseURL string
}

// NewLocal stores files under root and builds URLs under baseURL, which is
// usually the route the directory is mounted at.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: root, baseURL: baseURL}, nil
}

func (l *Local) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, contentType string) (Object, error) {
	key, err := cleanKey(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	dst := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Object{}, fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return Object{}, fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return Object{}, fmt.Errorf("close object: %w", err)
	}

	return Object{Path: key, FullPath: bucket + "/" + key, URL: l.PublicURL(bucket, key)}, nil
}

func (l *Local) Remove(ctx context.Context, bucket string, paths ...string) error {
	var errs []error
	for _, p := range paths {
		key, err := cleanKey(bucket, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		err = os.Remove(filepath.Join(l.root, bucket, filepath.FromSlash(key)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Local) PublicURL(bucket, objectPath string) string {
	return joinURL(l.baseURL, bucket, objectPath)
}
