// Package proof builds and verifies the digests that bind a one-time
// context to an exact request. The preimage layout is part of the wire
// contract: independent implementations must produce identical bytes,
// so field order, separators, and the empty-field rules below are
// fixed per version tag and never vary by input.
package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/proofbind/proofbind/secure"
)

// Version tags the preimage layout. Bump only with a new layout.
const Version = "pfb1"

// Family selects where the proof's key material comes from.
type Family string

const (
	// FamilyHash embeds the server nonce directly in the preimage.
	// The server recomputes from its own stored nonce; nothing
	// secret travels to the client.
	FamilyHash Family = "hash"
	// FamilyDerived keys an HMAC with a one-way derivative of the
	// nonce. The client only ever sees the derivative; the raw nonce
	// stays server-side forever.
	FamilyDerived Family = "derived"
)

var ErrMissingKeyMaterial = errors.New("proof: derived family requires a nonce or client secret")

// Input carries everything a proof is a function of. Payload must
// already be canonical. An empty Nonce is treated identically to an
// absent one; that equivalence is a compatibility rule, not a gap.
type Input struct {
	Mode      string
	Binding   string
	ContextID string
	Family    Family
	// Nonce is the server-side nonce. Hash family: embedded in the
	// preimage. Derived family: used to re-derive the client secret
	// when ClientSecret is empty.
	Nonce string
	// ClientSecret is the derived key material the client holds.
	ClientSecret string
	Payload      string
	Scope        []string
	// Chained marks this proof as part of a sequence. The first link
	// uses an empty PreviousProof, which still hashes (to hash of the
	// empty string); an unchained proof contributes nothing.
	Chained       bool
	PreviousProof string
}

// Result is a built proof plus the scope and chain hashes that were
// folded into it, so callers can ship them alongside the proof.
type Result struct {
	Proof     string
	ScopeHash string
	ChainHash string
}

// Build computes the proof for in. Deterministic: equal inputs always
// produce equal results.
func Build(in Input) (Result, error) {
	scopeHash := ScopeHash(in.Scope)
	chainHash := ""
	if in.Chained {
		chainHash = HashProof(in.PreviousProof)
	}

	var pre strings.Builder
	pre.WriteString(Version)
	pre.WriteByte('\n')
	pre.WriteString(in.Mode)
	pre.WriteByte('\n')
	pre.WriteString(in.Binding)
	pre.WriteByte('\n')
	pre.WriteString(in.ContextID)
	pre.WriteByte('\n')
	// Anything but the derived family is the hash family, including
	// the zero value.
	if in.Family != FamilyDerived && in.Nonce != "" {
		pre.WriteString(in.Nonce)
		pre.WriteByte('\n')
	}
	// The trailing fields are newline-delimited like the leading ones:
	// no preimage field may ever absorb bytes from its neighbor, or a
	// scoped payload and an unscoped payload+hash would collide.
	pre.WriteString(in.Payload)
	pre.WriteByte('\n')
	pre.WriteString(scopeHash)
	pre.WriteByte('\n')
	pre.WriteString(chainHash)

	var p string
	if in.Family == FamilyDerived {
		key, err := clientSecret(in)
		if err != nil {
			return Result{}, err
		}
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write([]byte(pre.String()))
		p = base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	} else {
		p = digest(pre.String())
	}
	return Result{Proof: p, ScopeHash: scopeHash, ChainHash: chainHash}, nil
}

// Verify recomputes the expected proof through the identical formula
// and compares in constant time.
func Verify(in Input, presented string) (bool, error) {
	expected, err := Build(in)
	if err != nil {
		return false, err
	}
	return secure.Compare(expected.Proof, presented), nil
}

func clientSecret(in Input) (string, error) {
	if in.ClientSecret != "" {
		return in.ClientSecret, nil
	}
	if in.Nonce == "" {
		return "", ErrMissingKeyMaterial
	}
	return DeriveClientSecret(in.Nonce, in.ContextID, in.Binding)
}

// DeriveClientSecret computes the one-way client-side key for the
// derived family: HKDF-SHA256 with the nonce as input keying material,
// the context id as salt, and the binding as info. Knowing the result
// reveals nothing about the nonce.
func DeriveClientSecret(nonce, contextID, binding string) (string, error) {
	r := hkdf.New(sha256.New, []byte(nonce), []byte(contextID), []byte(binding))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// ScopeHash hashes the deterministic join of the scope list, binding
// the field selection itself. Empty scope means "protect everything"
// and contributes an empty hash.
func ScopeHash(scope []string) string {
	if len(scope) == 0 {
		return ""
	}
	return digest(strings.Join(scope, ","))
}

// HashProof produces the chain link for the next request in a
// sequence. HashProof("") is the seed link for a sequence's first
// request.
func HashProof(p string) string {
	return digest(p)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
