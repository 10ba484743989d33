// Package blob stores uploaded media bytes. Objects are addressed by a
// bucket (or folder) and a slash-separated path inside it.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrInvalidPath = errors.New("invalid object path")

// Object is a stored blob. FullPath is "bucket/path".
type Object struct {
	Path     string
	FullPath string
	URL      string
}

// Store is the blob-store collaborator. Remove ignores paths that do not
// exist.
type Store interface {
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, contentType string) (Object, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	PublicURL(bucket, objectPath string) string
}

// cleanKey normalizes an object path and rejects anything that escapes the
// bucket.
func cleanKey(bucket, objectPath string) (string, error) {
	if strings.TrimSpace(bucket) == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidPath
	}
	key := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(objectPath, `\`, "/")), "/")
	if key == "" || key == "." || strings.HasPrefix(key, "../") || strings.Contains(objectPath, "..") {
		return "", ErrInvalidPath
	}
	return key, nil
}

func joinURL(base string, parts ...string) string {
	out := strings.TrimRight(base, "/")
	for _, p := range parts {
		out += "/" + strings.Trim(p, "/")
	}
	return out
}
