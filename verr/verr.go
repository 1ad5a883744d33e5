// Package verr defines the verification error taxonomy. Every rejection
// the pipeline or its components can produce carries exactly one Kind;
// callers branch on the kind, never on message text.
package verr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidContext         Kind = "invalid_context"
	ContextExpired         Kind = "context_expired"
	ReplayDetected         Kind = "replay_detected"
	IntegrityFailed        Kind = "integrity_failed"
	EndpointMismatch       Kind = "endpoint_mismatch"
	ScopeMismatch          Kind = "scope_mismatch"
	ChainBroken            Kind = "chain_broken"
	UnsupportedContentType Kind = "unsupported_content_type"
	CanonicalizationFailed Kind = "canonicalization_failed"
	MalformedRequest       Kind = "malformed_request"
)

// Error is the single tagged error type used across the module.
// Messages stay generic on purpose: canonical payloads, nonces,
// secrets, and proof intermediates must never appear in them.
type Error struct {
	Kind Kind
	msg  string
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string {
	if e.msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Is reports kind equality, so errors.Is(err, verr.New(kind, "")) works
// and wrapped errors keep their taxonomy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the taxonomy kind from err, or "" if err is not a
// verification error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
