// Package random provides seed helpers for scenario selection.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Stream returns the n-th deterministic random stream derived from seed.
func Stream(seed int64, n uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), n))
}
