// Package secure holds the constant-time comparison primitive every
// proof check in this module must go through.
package secure

import "crypto/subtle"

// Compare reports whether a and b are equal without leaking, through
// timing, where the first difference occurs. Length is not secret: the
// length check short-circuits, but all proofs in this module are fixed
// width so equal-length inputs are the only interesting case.
func Compare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
