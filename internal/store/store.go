package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a small key/value persistence interface for settings. Values are
// JSON documents (booleans, lists of app ids, legacy blobs).
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]json.RawMessage, error)
	Close() error
}
