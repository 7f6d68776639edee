// Package kvstore provides collection-scoped key-value stores. The evaluation
// judge cache is their main user.
package kvstore

import "context"

// DefaultCollection is used when an empty collection name is given.
const DefaultCollection = "data"

// StoredValue is a JSON-compatible value stored under a key.
type StoredValue map[string]interface{}

// KVStore is the interface for key-value stores.
type KVStore interface {
	// Put stores a value, replacing any previous value under the same key.
	Put(ctx context.Context, key string, val StoredValue, collection string) error

	// Get retrieves a value. It returns nil, nil when the key does not exist.
	Get(ctx context.Context, key string, collection string) (StoredValue, error)

	// GetAll retrieves every value of a collection.
	GetAll(ctx context.Context, collection string) (map[string]StoredValue, error)

	// Delete removes a value and reports whether it existed.
	Delete(ctx context.Context, key string, collection string) (bool, error)
}

// PersistableKVStore extends KVStore with persistence to a file.
type PersistableKVStore interface {
	KVStore

	// Persist saves the store to the specified path.
	Persist(ctx context.Context, persistPath string) error
}

func collectionOrDefault(collection string) string {
	if collection == "" {
		return DefaultCollection
	}
	return collection
}
