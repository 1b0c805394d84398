// Package util holds small helpers shared across the chatbot: identifier generation and
// environment parsing.
package util

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// GenerateRandomHex returns a random lowercase hex string of the given length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.IntN(len(hexChars))])
	}
	return b.String()
}

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex characters.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateSessionID returns a fresh chat session id (a random UUID).
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateAdminMessageID returns an id for a message injected by a human operator.
func GenerateAdminMessageID() string {
	return GenerateRandomID("am_", 24)
}
