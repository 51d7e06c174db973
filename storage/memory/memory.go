// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"sync"

	"github.com/jmcleod/techsync/internal/util"
	"github.com/jmcleod/techsync/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Values are lost when the process exits; suitable for tests and
// ephemeral sessions.
type Repository struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string][]byte)}
}

func (r *Repository) Get(key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return util.CopyBytes(v), nil
}

func (r *Repository) Put(key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = util.CopyBytes(value)
	return nil
}

func (r *Repository) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.data[key]; ok {
		util.WipeBytes(v)
		delete(r.data, key)
	}
	return nil
}

// Len reports how many keys are stored.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
