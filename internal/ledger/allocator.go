package ledger

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"regexp"
)

// BatchIDPrefix starts every allocated batch id.
const BatchIDPrefix = "BATCH-"

var (
	batchIDPattern = regexp.MustCompile(`^BATCH-[A-Z0-9]+$`)
	idEncoding     = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Allocator draws candidate batch ids. Uniqueness is settled by the store's
// first write, so an Allocator only needs a large enough space.
type Allocator interface {
	Allocate() (string, error)
}

// RandomAllocator draws BATCH-XXXXXXXX ids from 40 random bits.
type RandomAllocator struct {
	rand io.Reader
}

// NewRandomAllocator reads from crypto/rand.
func NewRandomAllocator() RandomAllocator {
	return RandomAllocator{rand: rand.Reader}
}

// Allocate returns BATCH- followed by 8 base32 characters (A-Z, 2-7).
func (a RandomAllocator) Allocate() (string, error) {
	src := a.rand
	if src == nil {
		src = rand.Reader
	}
	var buf [5]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return BatchIDPrefix + idEncoding.EncodeToString(buf[:]), nil
}

// ValidBatchID reports whether id has the allocated shape.
func ValidBatchID(id string) bool {
	return batchIDPattern.MatchString(id)
}
