// Package memory provides TTL-bound conversation memory storage, keyed by
// a caller-supplied keyword plus a fragment derived from the last user
// message. Supports both an in-process store and Redis for multi-instance
// deployments.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// fragmentLength is the number of hex characters of the message digest
// included in the key.
const fragmentLength = 20

// Record is one persisted conversation turn.
type Record struct {
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
	Keyword   string    `json:"keyword"`
}

// Store defines the interface for conversation memory storage.
// Implementations must be safe for concurrent use. Writes are
// last-write-wins; entries expire after the configured TTL.
type Store interface {
	// Get retrieves a record. Returns nil, nil if absent or expired.
	Get(ctx context.Context, key string) (*Record, error)

	// Put stores a record with the given TTL.
	Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error

	// List returns the keys matching the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Key derives the storage key for a keyword and the last user message:
// "memory:{keyword}:{20-char digest fragment of the message}".
func Key(keyword, lastUserMessage string) string {
	sum := sha256.Sum256([]byte(lastUserMessage))
	fragment := hex.EncodeToString(sum[:])[:fragmentLength]
	return "memory:" + keyword + ":" + fragment
}

// KeywordPrefix returns the key prefix covering every record stored under
// a keyword.
func KeywordPrefix(keyword string) string {
	return "memory:" + keyword + ":"
}
