package engagement

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
)

// SystemRNG is the production RNG. Each draw reads from crypto/rand,
// with math/rand/v2's ChaCha8 default source as a fallback if the
// system entropy read ever fails. Safe for concurrent use.
type SystemRNG struct{}

func (SystemRNG) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return mathrand.Float64()
	}
	// Use the top 53 bits for a uniform float in [0,1).
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}
