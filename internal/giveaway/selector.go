package giveaway

import (
	crand "crypto/rand"
	"math/rand/v2"
	"slices"
	"sync"
)

// Selector draws winners uniformly without replacement. Safe for
// concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector seeds a ChaCha8 stream from crypto/rand.
func NewSelector() *Selector {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("giveaway: crypto/rand unavailable: " + err.Error())
	}
	return NewSeededSelector(seed)
}

// NewSeededSelector returns a reproducible selector.
func NewSeededSelector(seed [32]byte) *Selector {
	return &Selector{rng: rand.New(rand.NewChaCha8(seed))}
}

// Select returns min(len(participants), count) distinct participants.
// When everyone fits, the result is a copy of participants in order.
func (s *Selector) Select(participants []int64, count int) []int64 {
	if count <= 0 || len(participants) == 0 {
		return []int64{}
	}
	if len(participants) <= count {
		return slices.Clone(participants)
	}
	pool := slices.Clone(participants)
	s.mu.Lock()
	defer s.mu.Unlock()
	// Partial Fisher-Yates: the first count slots are a uniform sample.
	for i := 0; i < count; i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count:count]
}
