// Package store defines the context store contract. The store is the
// only owner of context records and the only place replay prevention
// happens: Consume must be one indivisible operation, never a read
// followed by a write.
package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/proofbind/proofbind/model"
)

var (
	ErrNotFound   = errors.New("context not found")
	ErrInvalidTTL = errors.New("context ttl must be positive")
)

// Outcome is the result of an atomic consume. Under any number of
// concurrent consumers of one id, exactly one observes Consumed.
type Outcome int

const (
	Consumed Outcome = iota
	AlreadyConsumed
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Consumed:
		return "consumed"
	case AlreadyConsumed:
		return "already_consumed"
	case Missing:
		return "missing"
	}
	return "unknown"
}

type ContextStore interface {
	// Create issues a fresh context bound to binding with the given
	// TTL. The TTL must be positive: a record can never be born
	// expired. Strict-mode contexts get a server-side nonce.
	Create(ctx context.Context, binding string, ttl time.Duration, mode model.Mode, metadata map[string]string) (model.Context, error)

	// Get returns the context by id. Expired records read as absent
	// (ErrNotFound) even while physically present; consumed records
	// remain readable so a replay can still be classified as such.
	Get(ctx context.Context, id string) (model.Context, error)

	// Consume flips the context from unused to used as of now. It is
	// the sole replay-prevention mechanism and must be linearizable:
	// at most one caller ever gets Consumed.
	Consume(ctx context.Context, id string, now time.Time) (Outcome, error)

	// Cleanup reclaims expired and consumed records. Advisory;
	// correctness never depends on it running.
	Cleanup(ctx context.Context) (int, error)

	Close() error
}

// NewID generates a context id with 128 bits of CSPRNG entropy.
func NewID() (string, error) {
	return randomToken(16)
}

// NewNonce generates a server-side nonce for strict-mode contexts.
func NewNonce() (string, error) {
	return randomToken(32)
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
