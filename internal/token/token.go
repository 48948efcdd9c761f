// Package token manages the shared secret clients present to the daemon:
// generating it, storing it in a 0600 file and comparing candidates in
// constant time.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// GeneratedBytes is the amount of randomness in a generated token, which
// is written as twice as many lowercase hex characters.
const GeneratedBytes = 32

// MinLength is the shortest user-supplied token that is not reported as
// weak.
const MinLength = 16

// ErrWhitespace is returned by Validate for a token that could not survive
// the line-oriented token file and request framing.
var ErrWhitespace = errors.New("token must not contain whitespace")

// Generate returns a fresh token of GeneratedBytes random bytes in hex.
func Generate() (string, error) {
	b := make([]byte, GeneratedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Validate reports whether value can be stored in a token file and sent
// as the first request line.
func Validate(value string) error {
	if value == "" {
		return fmt.Errorf("token must not be empty")
	}
	if strings.ContainsAny(value, " \t\r\n\v\f") {
		return ErrWhitespace
	}
	return nil
}

// Weak reports whether value is shorter than MinLength.
func Weak(value string) bool {
	return len(value) < MinLength
}
