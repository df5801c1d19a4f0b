// Package identity generates the random identifiers LSNP needs:
// MessageId, GameId and GroupId (spec.md §3, §6).
package identity

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// NewMessageID returns 16 lowercase hex digits (>= 64 bits of entropy),
// per spec.md §6.
// The two halves of a v4 UUID are XORed: each output byte mixes in at
// least one fully random byte, so the fixed version/variant bits do not
// reduce the 64 bits of the result.
func NewMessageID() string {
	u := uuid.New()
	var b [8]byte
	for i := range b {
		b[i] = u[i] ^ u[i+8]
	}
	return hex.EncodeToString(b[:])
}

// NewGameID returns an 8-character URL-safe token, sender-local-unique
// per spec.md §6 ("3-16 URL-safe characters").
func NewGameID() string {
	return randomToken(8)
}

// NewGroupID returns a 12-character URL-safe token chosen by the creator,
// per spec.md §6 ("3-32 URL-safe characters").
func NewGroupID() string {
	return randomToken(12)
}

func randomToken(n int) string {
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		u := uuid.New()
		for _, by := range u[:] {
			if b.Len() >= n {
				break
			}
			b.WriteByte(urlSafeAlphabet[int(by)%len(urlSafeAlphabet)])
		}
	}
	return b.String()
}
