package token

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Secret is the daemon's shared secret. The zero value matches nothing.
//
// A Secret keeps only a digest of its value and String and GoString render a
// placeholder, so passing one to a logger is harmless.
type Secret struct {
	digest [sha256.Size]byte
	set    bool
}

// NewSecret wraps a raw secret value. An empty value yields a Secret that
// matches nothing.
func NewSecret(value string) Secret {
	if value == "" {
		return Secret{}
	}
	return Secret{digest: sha256.Sum256([]byte(value)), set: true}
}

// Equal reports whether candidate matches the secret.
//
// Both sides are hashed to fixed-size digests before a constant-time
// comparison, so the time taken does not depend on where the first
// differing byte is or on the candidate's length.
func (s Secret) Equal(candidate string) bool {
	c := sha256.Sum256([]byte(candidate))
	eq := subtle.ConstantTimeCompare(s.digest[:], c[:])
	return s.set && eq == 1
}

// IsZero reports whether the secret is unset.
func (s Secret) IsZero() bool {
	return !s.set
}

// String implements fmt.Stringer with a redacted value.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer with a redacted value.
func (s Secret) GoString() string {
	return "token.Secret{[REDACTED]}"
}
