package stream

import (
	"sync"
	"time"
)

// DefaultMinInterval caps the outgoing rate at roughly 30 fps.
const DefaultMinInterval = 33 * time.Millisecond

// Throttle enforces a minimum interval between accepted frames. Frames
// offered too soon are discarded, never queued; the caller must still
// release them since capture buffers are a bounded resource.
type Throttle struct {
	mu           sync.Mutex
	minInterval  time.Duration
	lastAccepted time.Time
}

func NewThrottle(minInterval time.Duration) *Throttle {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Throttle{minInterval: minInterval}
}

// Accept reports whether a frame offered at now passes the rate limit,
// recording now as the last accepted timestamp when it does.
func (t *Throttle) Accept(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lastAccepted.IsZero() && now.Sub(t.lastAccepted) < t.minInterval {
		return false
	}
	t.lastAccepted = now
	return true
}
