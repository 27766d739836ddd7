package collection

import (
	cryptorand "crypto/rand"
	"math/rand/v2"
)

// IDLength is the number of hex characters in an identifier.
const IDLength = 16

const hexDigits = "0123456789abcdef"

// idGenerator draws identifiers one nibble at a time from rnd.
type idGenerator struct {
	rnd *rand.Rand
}

// newIDGenerator returns a generator backed by rnd, or by a ChaCha8 stream
// seeded from crypto/rand when rnd is nil so identifiers are hard to guess.
func newIDGenerator(rnd *rand.Rand) *idGenerator {
	if rnd == nil {
		var seed [32]byte
		_, _ = cryptorand.Read(seed[:])
		rnd = rand.New(rand.NewChaCha8(seed))
	}
	return &idGenerator{rnd: rnd}
}

// next returns a fresh identifier for which taken reports false.
func (g *idGenerator) next(taken func(string) bool) string {
	var buf [IDLength]byte
	for {
		for i := range buf {
			buf[i] = hexDigits[g.rnd.IntN(16)]
		}
		if id := string(buf[:]); !taken(id) {
			return id
		}
	}
}

// ValidID reports whether id has the shape of a generated identifier.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
