package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore used by tests and fixture builds.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	puts    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

func (m *MemoryStore) Put(ctx context.Context, obj *Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++

	hash := obj.Hash
	if hash == "" {
		hash = HashBytes(obj.Data)
	}
	if _, ok := m.objects[hash]; ok {
		return hash, nil
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	now := time.Now()
	m.objects[hash] = &Object{
		Hash:        hash,
		Type:        obj.Type,
		ContentType: obj.ContentType,
		Size:        int64(len(data)),
		Data:        data,
		Metadata: Metadata{
			CreatedAt:    now,
			LastAccessed: now,
			ContentType:  obj.ContentType,
			Type:         obj.Type,
			Custom:       obj.Metadata.Custom,
		},
	}
	return hash, nil
}

func (m *MemoryStore) Get(ctx context.Context, hash string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	clone := *obj
	clone.Data = append([]byte(nil), obj.Data...)
	return &clone, nil
}

func (m *MemoryStore) Exists(ctx context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[hash]
	return ok, nil
}

func (m *MemoryStore) Delete(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[hash]; !ok {
		return ErrNotFound{Hash: hash}
	}
	delete(m.objects, hash)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for h, obj := range m.objects {
		if objectType == "" || obj.Type == objectType {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// Puts reports how many Put calls the store has received.
func (m *MemoryStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
