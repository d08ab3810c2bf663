package display

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps handles in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Handle]Object
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[Handle]Object)}
}

// Put stores a copy of data under a fresh handle.
func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (Handle, error) {
	h := Handle(uuid.NewString())
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[h] = Object{Data: buf, ContentType: contentType}
	s.mu.Unlock()
	return h, nil
}

// Get resolves a handle.
func (s *MemoryStore) Get(ctx context.Context, h Handle) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &obj, nil
}

// Revoke drops a handle. Revoking an unknown handle is a no-op.
func (s *MemoryStore) Revoke(ctx context.Context, h Handle) error {
	s.mu.Lock()
	delete(s.objects, h)
	s.mu.Unlock()
	return nil
}

// Len reports how many handles are live.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
