package session

import (
	"sync"
	"time"
)

// statsStaleAfter is how long without a frame before a session reports
// itself inactive.
const statsStaleAfter = 2 * time.Second

// statsWindow is the minimum wall-clock span over which FPS is computed.
const statsWindow = time.Second

// Stats keeps rolling FPS and latency for one camera session. Written
// only by that session's reader goroutine; snapshots are safe from any
// goroutine.
type Stats struct {
	mu          sync.Mutex
	fps         float64
	latencyMs   float64
	windowCount int
	windowStart time.Time
	totalFrames uint64
	totalBytes  uint64
	lastUpdated time.Time
}

type StatsSnapshot struct {
	FPS         float64 `json:"fps"`
	LatencyMs   float64 `json:"latencyMs"`
	TotalFrames uint64  `json:"totalFrames"`
	TotalBytes  uint64  `json:"totalBytes"`
	Active      bool    `json:"active"`
}

func newStats() *Stats {
	return &Stats{windowStart: time.Now()}
}

// recordFrame notes a frame that finished the adjustment pipeline.
// latency is arrival to pipeline completion.
func (s *Stats) recordFrame(arrival time.Time, size int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFrames++
	s.totalBytes += uint64(size)
	s.latencyMs = float64(latency.Microseconds()) / 1000.0
	s.lastUpdated = arrival
	s.windowCount++
	if elapsed := arrival.Sub(s.windowStart); elapsed >= statsWindow {
		s.fps = float64(s.windowCount) / elapsed.Seconds()
		s.windowCount = 0
		s.windowStart = arrival
	}
}

// Snapshot returns the current rolling figures. A session with no frames
// for statsStaleAfter reports zero FPS and inactive.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	shot := StatsSnapshot{
		FPS:         s.fps,
		LatencyMs:   s.latencyMs,
		TotalFrames: s.totalFrames,
		TotalBytes:  s.totalBytes,
		Active:      !s.lastUpdated.IsZero() && time.Since(s.lastUpdated) < statsStaleAfter,
	}
	if !shot.Active {
		shot.FPS = 0
	}
	return shot
}
