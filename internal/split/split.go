// Package split provides the randomness source behind gradual-migration
// traffic splitting. The production source draws uniformly from math/rand;
// tests inject a Sequence to pin routing outcomes.
package split

import (
	"math/rand"
	"sync"
)

// Source yields one uniform integer in [0,99] per call. Draws are independent
// of each other and implementations must be safe for concurrent use.
type Source interface {
	Next() int
}

type randSource struct{}

func (randSource) Next() int { return rand.Intn(100) }

// NewRandSource returns a Source backed by math/rand's shared, locked source.
func NewRandSource() Source { return randSource{} }

// Sequence replays a fixed series of draws, cycling when exhausted.
type Sequence struct {
	mu    sync.Mutex
	draws []int
	next  int
}

func NewSequence(draws ...int) *Sequence {
	if len(draws) == 0 {
		draws = []int{0}
	}
	return &Sequence{draws: draws}
}

func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draws[s.next%len(s.draws)]
	s.next++
	return d
}
