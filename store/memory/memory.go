// Package memory is the in-process context store: a mutex-guarded map,
// correct for a single process. Consume holds the lock across the
// whole check-and-set, which is the entire atomicity story here.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/proofbind/proofbind/model"
	"github.com/proofbind/proofbind/store"
)

type Store struct {
	mu       sync.Mutex
	contexts map[string]*model.Context
}

func New() *Store {
	return &Store{contexts: make(map[string]*model.Context)}
}

func (s *Store) Create(_ context.Context, binding string, ttl time.Duration, mode model.Mode, metadata map[string]string) (model.Context, error) {
	if ttl <= 0 {
		return model.Context{}, store.ErrInvalidTTL
	}
	id, err := store.NewID()
	if err != nil {
		return model.Context{}, err
	}
	nonce := ""
	if mode.RequiresNonce() {
		if nonce, err = store.NewNonce(); err != nil {
			return model.Context{}, err
		}
	}
	now := time.Now()
	rec := &model.Context{
		ID:        id,
		Binding:   binding,
		Mode:      mode,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Nonce:     nonce,
		Metadata:  cloneMeta(metadata),
	}
	s.mu.Lock()
	s.contexts[id] = rec
	s.mu.Unlock()
	return clone(rec), nil
}

func (s *Store) Get(_ context.Context, id string) (model.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.contexts[id]
	if !ok || rec.Expired(time.Now()) {
		return model.Context{}, store.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) Consume(_ context.Context, id string, now time.Time) (store.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.contexts[id]
	if !ok || rec.Expired(now) {
		return store.Missing, nil
	}
	if rec.ConsumedAt != nil {
		return store.AlreadyConsumed, nil
	}
	at := now
	rec.ConsumedAt = &at
	return store.Consumed, nil
}

func (s *Store) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	count := 0
	for id, rec := range s.contexts {
		if rec.Expired(now) || rec.ConsumedAt != nil {
			delete(s.contexts, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) Close() error {
	return nil
}

func clone(rec *model.Context) model.Context {
	out := *rec
	out.Metadata = cloneMeta(rec.Metadata)
	if rec.ConsumedAt != nil {
		at := *rec.ConsumedAt
		out.ConsumedAt = &at
	}
	return out
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
