// Package pipeline runs the verification sequence external callers
// consume: context lookup, expiry, binding, canonicalization, proof
// recomputation, and only then the atomic consume. The sequence is
// fail-closed: the first failing step rejects, later steps never run,
// and nothing retries. Adapters translate their framework's request
// into an explicit Request; the core never reads ambient request
// state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/proofbind/proofbind/canonical"
	"github.com/proofbind/proofbind/model"
	"github.com/proofbind/proofbind/proof"
	"github.com/proofbind/proofbind/secure"
	"github.com/proofbind/proofbind/store"
	"github.com/proofbind/proofbind/verr"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

type Pipeline struct {
	store store.ContextStore
}

func New(st store.ContextStore) *Pipeline {
	return &Pipeline{store: st}
}

// Request is one verification attempt, fully explicit. Scope, scope
// hash, and chain hash are whatever the client transmitted; Chained
// and PreviousProof are the server's own expectation of the sequence
// position. Now defaults to the wall clock when zero.
type Request struct {
	ContextID   string
	Proof       string
	Method      string
	Path        string
	ContentType string
	Body        []byte

	Scope     []string
	ScopeHash string
	ChainHash string

	Chained       bool
	PreviousProof string

	Family proof.Family
	Now    time.Time
}

// Verify runs the full sequence and returns the consumed context on
// acceptance. Every rejection is a verr.Error carrying exactly one
// taxonomy kind; any other error is an infrastructure failure.
func (p *Pipeline) Verify(ctx context.Context, req Request) (model.Context, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	if req.ContextID == "" || req.Proof == "" {
		return model.Context{}, verr.New(verr.MalformedRequest, "missing context id or proof")
	}

	// ContextLookup
	rec, err := p.store.Get(ctx, req.ContextID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Context{}, verr.New(verr.InvalidContext, "unknown context")
		}
		return model.Context{}, fmt.Errorf("context lookup: %w", err)
	}

	// ExpiryCheck, against the pipeline's own clock even though the
	// store already hides expired records.
	if rec.Expired(now) {
		return model.Context{}, verr.New(verr.ContextExpired, "context expired")
	}
	if rec.Mode.RequiresNonce() && rec.Nonce == "" {
		return model.Context{}, verr.New(verr.InvalidContext, "context is missing required key material")
	}

	// BindingCheck
	binding := canonical.Binding(req.Method, req.Path)
	if !secure.Compare(binding, rec.Binding) {
		return model.Context{}, verr.New(verr.EndpointMismatch, "request does not match context binding")
	}

	// The transmitted scope hash must match the transmitted scope
	// list, or the selection itself was tampered with.
	wantScope := proof.ScopeHash(req.Scope)
	if len(req.Scope) > 0 || req.ScopeHash != "" {
		if !secure.Compare(wantScope, req.ScopeHash) {
			return model.Context{}, verr.New(verr.ScopeMismatch, "scope hash does not match scope list")
		}
	}

	// Chain continuity against the server's retained previous proof.
	if req.Chained {
		if !secure.Compare(proof.HashProof(req.PreviousProof), req.ChainHash) {
			return model.Context{}, verr.New(verr.ChainBroken, "chain hash does not match previous proof")
		}
	} else if req.ChainHash != "" {
		return model.Context{}, verr.New(verr.ChainBroken, "unexpected chain hash")
	}

	// Canonicalize
	payload, err := Canonicalize(req.ContentType, req.Body, req.Scope)
	if err != nil {
		return model.Context{}, err
	}

	// ProofRecompute + CompareProof
	ok, err := proof.Verify(proof.Input{
		Mode:          string(rec.Mode),
		Binding:       rec.Binding,
		ContextID:     rec.ID,
		Family:        req.Family,
		Nonce:         rec.Nonce,
		Payload:       payload,
		Scope:         req.Scope,
		Chained:       req.Chained,
		PreviousProof: req.PreviousProof,
	}, req.Proof)
	if err != nil {
		return model.Context{}, verr.New(verr.InvalidContext, "context cannot key the requested proof family")
	}
	if !ok {
		return model.Context{}, verr.New(verr.IntegrityFailed, "proof mismatch")
	}

	// AtomicConsume, strictly last: an invalid request never burns
	// the token, and the consume outcome — not the proof match — is
	// what decides acceptance.
	outcome, err := p.store.Consume(ctx, rec.ID, now)
	if err != nil {
		return model.Context{}, fmt.Errorf("context consume: %w", err)
	}
	switch outcome {
	case store.Consumed:
		return rec, nil
	case store.AlreadyConsumed:
		return model.Context{}, verr.New(verr.ReplayDetected, "context already consumed")
	default:
		// The record was present at lookup but gone at consume under
		// the same clock, so it was reclaimed in between. A sweeper
		// only reclaims consumed or wall-clock-expired records, and
		// the consumed case is a replay; classify to the safer kind.
		return model.Context{}, verr.New(verr.ReplayDetected, "context reclaimed before consumption")
	}
}

// Canonicalize dispatches on content type and produces the canonical
// payload a proof covers, with scope filtering applied first. Only
// JSON and form-encoded payloads are accepted.
func Canonicalize(contentType string, body []byte, scope []string) (string, error) {
	switch mediaType(contentType) {
	case ContentTypeJSON:
		if len(scope) == 0 {
			return canonical.StructuredBytes(body)
		}
		v, err := canonical.Decode(body)
		if err != nil {
			return "", err
		}
		return canonical.Structured(canonical.Project(v, scope))
	case ContentTypeForm:
		filtered, err := canonical.FilterForm(string(body), scope)
		if err != nil {
			return "", err
		}
		return canonical.FormEncoded(filtered)
	default:
		return "", verr.New(verr.UnsupportedContentType, "unsupported content type")
	}
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
