package clients

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerSet hands out one circuit breaker per key, created on first use.
// The userapi client keys it by instance address so one bad instance trips
// without affecting the others.
type BreakerSet struct {
	prefix   string
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerSet returns a BreakerSet whose breakers are named prefix+":"+key.
func NewBreakerSet(prefix string) *BreakerSet {
	return &BreakerSet{
		prefix:   prefix,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it if needed.
func (s *BreakerSet) Get(key string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(s.prefix + ":" + key)
		s.breakers[key] = cb
	}
	return cb
}

// IsOpen reports whether the breaker for key exists and is open.
func (s *BreakerSet) IsOpen(key string) bool {
	s.mu.Lock()
	cb, ok := s.breakers[key]
	s.mu.Unlock()
	return ok && cb.State() == gobreaker.StateOpen
}

// probeResult converts the outcome of a breaker-wrapped probe into a
// health.ProbeResult, reporting an open breaker as "circuit open".
func probeResult(name string, start time.Time, err error) health.ProbeResult {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return health.ProbeResult{
			Name:      name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return health.ProbeResult{
		Name:      name,
		OK:        true,
		LatencyMs: latency,
	}
}
