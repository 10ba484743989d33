package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory keeps blobs in process. Setting FailUpload or FailRemove makes the
// matching calls return that error.
type Memory struct {
	mu         sync.Mutex
	objects    map[string][]byte
	baseURL    string
	FailUpload error
	FailRemove error
}

func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string][]byte), baseURL: baseURL}
}

func (m *Memory) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, contentType string) (Object, error) {
	key, err := cleanKey(bucket, objectPath)
	if err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	fail := m.FailUpload
	m.mu.Unlock()
	if fail != nil {
		return Object{}, fail
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return Object{}, err
	}

	m.mu.Lock()
	m.objects[bucket+"/"+key] = buf.Bytes()
	m.mu.Unlock()
	return Object{Path: key, FullPath: bucket + "/" + key, URL: m.PublicURL(bucket, key)}, nil
}

func (m *Memory) Remove(ctx context.Context, bucket string, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemove != nil {
		return m.FailRemove
	}
	for _, p := range paths {
		if key, err := cleanKey(bucket, p); err == nil {
			delete(m.objects, bucket+"/"+key)
		}
	}
	return nil
}

func (m *Memory) PublicURL(bucket, objectPath string) string {
	return joinURL(m.baseURL, bucket, objectPath)
}

// Get returns a stored blob by its full path.
func (m *Memory) Get(fullPath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[fullPath]
	return data, ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
