package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// DataType maps collection names to their key-value pairs.
type DataType map[string]map[string]StoredValue

// SimpleKVStore is an in-memory KVStore. When opened with FromPersistPath it
// writes the whole store back to its file after every change.
type SimpleKVStore struct {
	mu          sync.RWMutex
	data        DataType
	persistPath string
}

// NewSimpleKVStore creates an empty in-memory store.
func NewSimpleKVStore() *SimpleKVStore {
	return &SimpleKVStore{
		data: make(DataType),
	}
}

// Put stores a copy of val.
func (s *SimpleKVStore) Put(ctx context.Context, key string, val StoredValue, collection string) error {
	collection = collectionOrDefault(collection)
	v, err := cloneValue(val)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection]; !ok {
		s.data[collection] = make(map[string]StoredValue)
	}
	s.data[collection][key] = v

	if s.persistPath != "" {
		return s.persistLocked(s.persistPath)
	}
	return nil
}

// Get returns a copy of the value, or nil when missing.
func (s *SimpleKVStore) Get(ctx context.Context, key string, collection string) (StoredValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[collectionOrDefault(collection)][key]
	if !ok {
		return nil, nil
	}
	return cloneValue(val)
}

// GetAll returns copies of every value of a collection.
func (s *SimpleKVStore) GetAll(ctx context.Context, collection string) (map[string]StoredValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]StoredValue)
	for k, v := range s.data[collectionOrDefault(collection)] {
		c, err := cloneValue(v)
		if err != nil {
			return nil, err
		}
		result[k] = c
	}
	return result, nil
}

// Delete removes a value.
func (s *SimpleKVStore) Delete(ctx context.Context, key string, collection string) (bool, error) {
	collection = collectionOrDefault(collection)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection][key]; !ok {
		return false, nil
	}
	delete(s.data[collection], key)

	if s.persistPath != "" {
		if err := s.persistLocked(s.persistPath); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Persist saves the store to persistPath.
func (s *SimpleKVStore) Persist(ctx context.Context, persistPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(persistPath)
}

func (s *SimpleKVStore) persistLocked(persistPath string) error {
	if err := os.MkdirAll(filepath.Dir(persistPath), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	return renameio.WriteFile(persistPath, data, 0644)
}

// FromPersistPath loads a store from persistPath and keeps it in sync with the file.
// A missing file yields an empty store.
func FromPersistPath(ctx context.Context, persistPath string) (*SimpleKVStore, error) {
	store := NewSimpleKVStore()
	store.persistPath = persistPath

	data, err := os.ReadFile(persistPath)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &store.data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", persistPath, err)
		}
	}
	if store.data == nil {
		store.data = make(DataType)
	}
	return store, nil
}

// cloneValue deep-copies through JSON so stored values never alias caller maps.
func cloneValue(val StoredValue) (StoredValue, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
	}
	var out StoredValue
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ KVStore            = (*SimpleKVStore)(nil)
	_ PersistableKVStore = (*SimpleKVStore)(nil)
)
