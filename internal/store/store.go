// Package store holds the string key/value persistence the ledgers write
// through to.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys used by the application.
const (
	KeyBills         = "fakturavakt:bills"
	KeyFamily        = "fakturavakt:family"
	KeySettings      = "fakturavakt:settings"
	KeyReminderIndex = "fakturavakt:reminder-index"
	KeyEncryption    = "fakturavakt:encryption-key"

	// LockWriter names the lock held by the process allowed to write.
	LockWriter = "fakturavakt:writer"
)

var (
	// ErrCorrupted is returned when a stored value cannot be decoded.
	ErrCorrupted = errors.New("stored value is corrupted")
	// ErrLocked is returned by TryLock when another holder has the lock.
	ErrLocked = errors.New("store is locked by another writer")
	// ErrReadOnly is returned by writes through a ReadOnly store.
	ErrReadOnly = errors.New("store is opened read-only")
)

// Store is an opaque string key/value store. Get reports ok=false for a
// missing key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Locker is implemented by stores that can grant one holder exclusive
// write access, across processes where the backend allows it.
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), err error)
}

// ReadOnly wraps a store and rejects every write.
type ReadOnly struct {
	Store
}

func (ReadOnly) Set(ctx context.Context, key, value string) error {
	return fmt.Errorf("%w: set %s", ErrReadOnly, key)
}

func (ReadOnly) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("%w: delete %s", ErrReadOnly, key)
}

// GetJSON decodes the value under key into v. ok is false when the key is
// absent, in which case v is left untouched.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupted, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// MemoryStore is a map-backed Store used by tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	locks  map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string), locks: make(map[string]bool)}
}

// TryLock takes the named lock for the lifetime of this MemoryStore. The
// returned unlock may be called more than once.
func (s *MemoryStore) TryLock(ctx context.Context, name string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[name] {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}
	s.locks[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, name)
			s.mu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
