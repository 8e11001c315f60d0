// Package idempotency stores responses to mutating requests under a
// client-chosen key so that a retried request replays the first response
// instead of placing a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "idem:"

	// DefaultTTL matches how long clients are told they may retry.
	DefaultTTL = 24 * time.Hour

	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = time.Minute

	pendingMarker = "pending"
)

var (
	// ErrInProgress means another request with the same key has not finished.
	ErrInProgress = errors.New("idempotency: request in progress")

	// ErrFingerprintMismatch means the key was reused for a different request.
	ErrFingerprintMismatch = errors.New("idempotency: key reused with different request")
)

// Response is a completed response kept for replay.
type Response struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Store keeps idempotency records in Redis.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewStore creates a Store. A zero ttl uses DefaultTTL.
func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Key builds the storage key. Keys are scoped per user so two users cannot
// collide on the same client-generated value.
func Key(scope, userID, clientKey string) string {
	return keyPrefix + scope + ":" + userID + ":" + clientKey
}

// Fingerprint hashes the parts of a request that must not change between
// retries.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin claims key for a new request. When a previous request with the
// same key completed, its response is returned and the caller must replay
// it instead of running the request again.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (*Response, error) {
	ok, err := s.client.SetNX(ctx, key, pendingMarker, pendingTTL).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the retry will claim it.
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, err
	}
	if raw == pendingMarker {
		return nil, ErrInProgress
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	if resp.Fingerprint != fingerprint {
		return nil, ErrFingerprintMismatch
	}
	return &resp, nil
}

// Complete stores the response for key.
func (s *Store) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, s.ttl).Err()
}

// Release drops a pending claim so the client can retry after a failure
// that left no state behind.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
