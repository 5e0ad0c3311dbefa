package certificate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrObjectNotFound is returned by Storage for a missing key.
var ErrObjectNotFound = errors.New("certificate: object not found")

type ObjectMeta struct {
	Key         string
	Size        int
	ContentType string
	UpdatedAt   time.Time
}

// Storage holds rendered documents by key.
type Storage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, ObjectMeta, error)
	DeleteObject(ctx context.Context, key string) error
}

// InMemoryStorage keeps objects in process memory.
type InMemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
	meta map[string]ObjectMeta
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		data: map[string][]byte{},
		meta: map[string]ObjectMeta{},
	}
}

func (s *InMemoryStorage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), body...)
	s.meta[key] = ObjectMeta{
		Key:         key,
		Size:        len(body),
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryStorage) GetObject(_ context.Context, key string) ([]byte, ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[key]
	if !ok {
		return nil, ObjectMeta{}, ErrObjectNotFound
	}
	return append([]byte(nil), body...), s.meta[key], nil
}

// DeleteObject removes key. Deleting a missing key is not an error.
func (s *InMemoryStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.meta, key)
	return nil
}

// Len reports how many objects are stored.
func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
