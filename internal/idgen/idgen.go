// Package idgen produces server-assigned entry ids. The store never imposes
// an id scheme; callers that bring their own ids bypass this package.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Generator produces a new entry id.
type Generator interface {
	GenerateID() string
}

// UUIDGenerator renders a random UUID as 32 lowercase hex characters.
type UUIDGenerator struct{}

func (UUIDGenerator) GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HexGenerator produces ids from raw random bytes, hex-encoded. Size is the
// number of random bytes; the resulting string is twice as long.
type HexGenerator struct {
	Size int
}

func (g HexGenerator) GenerateID() string {
	size := g.Size
	if size <= 0 {
		size = 16
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
