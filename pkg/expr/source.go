package expr

import (
	"math/rand"
	"sync"
	"time"

	"github.com/lemonberrylabs/sheetroll/pkg/random"
)

// Source produces die results. Roll must return a value in [1, sides].
type Source interface {
	Roll(sides int) int
}

// RandSource rolls dice from a seeded math/rand generator. It is safe for
// concurrent use.
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a deterministic source for the given seed.
func NewSource(seed int64) *RandSource {
	return &RandSource{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomSource returns a source seeded from crypto/rand.
func NewRandomSource() *RandSource {
	seed, err := random.NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	return NewSource(seed)
}

// Roll implements Source.
func (s *RandSource) Roll(sides int) int {
	if sides <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(sides) + 1
}

// SequenceSource replays a fixed list of results, cycling when exhausted.
// Values are clamped into [1, sides].
type SequenceSource struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequenceSource returns a source that yields values in order.
func NewSequenceSource(values ...int) *SequenceSource {
	return &SequenceSource{values: values}
}

// Roll implements Source.
func (s *SequenceSource) Roll(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 1
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	if v < 1 {
		v = 1
	}
	if v > sides {
		v = sides
	}
	return v
}
