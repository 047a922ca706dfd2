package collab

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// MemBlobStore is an in-memory BlobStore. It backs dry runs and tests.
type MemBlobStore struct {
	mu    sync.RWMutex
	files map[string][]byte
	mod   map[string]time.Time
}

// NewMemBlobStore returns an empty MemBlobStore.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{
		files: make(map[string][]byte),
		mod:   make(map[string]time.Time),
	}
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Read implements BlobStore.
func (m *MemBlobStore) Read(_ context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[cleanPath(p)]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memblob: read %s", p)
	}
	return append([]byte(nil), data...), nil
}

// Write implements BlobStore.
func (m *MemBlobStore) Write(_ context.Context, p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cleanPath(p)
	m.files[key] = append([]byte(nil), data...)
	m.mod[key] = time.Now().UTC()
	return nil
}

// Rename implements BlobStore. newName replaces only the last path element.
func (m *MemBlobStore) Rename(_ context.Context, p, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cleanPath(p)
	data, ok := m.files[key]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memblob: rename %s", p)
	}
	dst := cleanPath(path.Join(path.Dir(key), newName))
	m.files[dst] = data
	m.mod[dst] = time.Now().UTC()
	delete(m.files, key)
	delete(m.mod, key)
	return nil
}

// List implements BlobStore. It returns the direct children of dir.
func (m *MemBlobStore) List(_ context.Context, dir string) ([]BlobEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := cleanPath(dir)
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]BlobEntry)
	for key, data := range m.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			seen[name] = BlobEntry{Name: name, Path: prefix + name, IsFolder: true}
			continue
		}
		seen[name] = BlobEntry{Name: name, Path: key, Size: int64(len(data)), Modified: m.mod[key]}
	}

	out := make([]BlobEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
