// Package ident produces the client-local identifiers used for chats and
// messages. They are v4-UUID-shaped strings, never security tokens.
package ident

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// New returns a collision-resistant unique identifier. The primary path
// draws from the platform's secure random source; if that source is
// unavailable it falls back to a non-cryptographic generator that keeps
// the same textual shape, which is acceptable for client-local ids.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallback()
	}
	return id.String()
}

// fallback builds an RFC 4122 v4 lookalike from math/rand, mirroring the
// version nibble and variant bits of a real v4 UUID.
func fallback() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(rand.Intn(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
