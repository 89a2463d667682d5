package sensor

import (
	"context"
	"math/rand"
	"sync"
)

// DisconnectedC is the sentinel a DS18B20-style probe reports when the bus
// has no device attached. The sampler buffers it like any other value; the
// collector decides what to do with it.
const DisconnectedC = -127.0

// Sensor produces one temperature sample per call.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

// Simulated is a bounded random-walk sensor for development and tests.
type Simulated struct {
	mu  sync.Mutex
	cur float64
	rng *rand.Rand
}

const (
	simulatedMinC  = 15.0
	simulatedMaxC  = 30.0
	simulatedStepC = 0.25
)

// NewSimulated returns a simulated sensor starting at startC, clamped to
// the simulated range.
func NewSimulated(startC float64, seed int64) *Simulated {
	if startC < simulatedMinC {
		startC = simulatedMinC
	}
	if startC > simulatedMaxC {
		startC = simulatedMaxC
	}
	return &Simulated{cur: startC, rng: rand.New(rand.NewSource(seed))}
}

// Read steps the walk and returns the new temperature. Never fails.
func (s *Simulated) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur += (s.rng.Float64()*2 - 1) * simulatedStepC
	if s.cur < simulatedMinC {
		s.cur = simulatedMinC
	}
	if s.cur > simulatedMaxC {
		s.cur = simulatedMaxC
	}
	return s.cur, nil
}
