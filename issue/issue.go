// Package issue creates one-time contexts and shapes the projection
// the issuing caller may see. The raw nonce stays inside the store;
// for the derived-secret family only its one-way derivative goes out.
package issue

import (
	"context"
	"errors"
	"time"

	"github.com/proofbind/proofbind/canonical"
	"github.com/proofbind/proofbind/model"
	"github.com/proofbind/proofbind/proof"
	"github.com/proofbind/proofbind/store"
)

var ErrDerivedNeedsStrict = errors.New("issue: derived-secret family requires strict mode")

type Service struct {
	store store.ContextStore
	ttl   time.Duration
}

func NewService(st store.ContextStore, ttl time.Duration) *Service {
	return &Service{store: st, ttl: ttl}
}

// Options tunes a single issuance. Zero values fall back to balanced
// mode, the service TTL, and the hash family.
type Options struct {
	Mode     model.Mode
	TTL      time.Duration
	Family   proof.Family
	Metadata map[string]string
}

// Issue creates a context bound to the normalized endpoint and returns
// its public projection.
func (s *Service) Issue(ctx context.Context, method, path string, opts Options) (model.Issued, error) {
	mode := opts.Mode
	if mode == "" {
		mode = model.ModeBalanced
	}
	if !mode.Valid() {
		return model.Issued{}, errors.New("issue: unknown mode")
	}
	if opts.Family == proof.FamilyDerived && !mode.RequiresNonce() {
		return model.Issued{}, ErrDerivedNeedsStrict
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = s.ttl
	}

	binding := canonical.Binding(method, path)
	rec, err := s.store.Create(ctx, binding, ttl, mode, opts.Metadata)
	if err != nil {
		return model.Issued{}, err
	}

	issued := model.Issued{
		ID:        rec.ID,
		Binding:   rec.Binding,
		Mode:      rec.Mode,
		ExpiresAt: rec.ExpiresAt,
	}
	if opts.Family == proof.FamilyDerived {
		secret, err := proof.DeriveClientSecret(rec.Nonce, rec.ID, rec.Binding)
		if err != nil {
			return model.Issued{}, err
		}
		issued.ClientSecret = secret
	}
	return issued, nil
}
