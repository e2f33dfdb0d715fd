package store

import "context"

// Feed-related keys in the durable store.
const (
	// KeyNotifications holds the canonical notification list as a
	// UTF-8 JSON array. An absent key is an empty list.
	KeyNotifications = "notifications"

	// KeySession holds the signed-in user record.
	KeySession = "session"
)

// KV defines the durable key-value persistence interface. The feed
// keeps its entire canonical state under a single key, so nothing
// beyond single-key atomicity is required of implementations.
type KV interface {
	// Get returns the value stored under key. The boolean reports
	// whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
