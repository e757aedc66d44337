// Package telemetry maintains the latest tank level reading per tank and its
// freshness. The transport (MQTT or a simulator) writes readings in; the
// control loop reads lock-free value snapshots out and never touches the
// network. Readings are overwritten, never queued, and never deleted: on
// transport loss they simply go stale so the last known value stays visible
// for diagnostics while being excluded from safety decisions.
package telemetry

import (
	"sync"
	"time"
)

// Tank identifies one of the two monitored reservoirs.
type Tank string

const (
	TankLow  Tank = "low"  // source reservoir
	TankHigh Tank = "high" // destination reservoir
)

// Reading is one observed level sample. Immutable; superseded by newer
// readings for the same tank.
type Reading struct {
	Tank       Tank
	Percentage float64 // always in [0,100]
	ObservedAt time.Time
}

// Feed stores the newest reading per tank behind an RWMutex.
// Writers: the transport goroutine. Readers: the control loop and HTTP
// handlers, via value snapshots.
type Feed struct {
	mu         sync.RWMutex
	staleAfter time.Duration
	low        Reading
	high       Reading
	connected  bool
}

// NewFeed creates a Feed with the given staleness timeout.
func NewFeed(staleAfter time.Duration) *Feed {
	return &Feed{staleAfter: staleAfter}
}

// SetStaleAfter replaces the staleness timeout. Called on configuration
// reload; takes effect on the next freshness evaluation.
func (f *Feed) SetStaleAfter(d time.Duration) {
	f.mu.Lock()
	f.staleAfter = d
	f.mu.Unlock()
}

// Update stores a reading if it is at least as new as the current one for
// that tank. Out-of-order receipts are dropped so ObservedAt stays
// monotonically non-decreasing per tank. Percentage is clamped to [0,100].
func (f *Feed) Update(r Reading) {
	if r.Percentage < 0 {
		r.Percentage = 0
	} else if r.Percentage > 100 {
		r.Percentage = 100
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Tank {
	case TankLow:
		if r.ObservedAt.Before(f.low.ObservedAt) {
			return
		}
		f.low = r
	case TankHigh:
		if r.ObservedAt.Before(f.high.ObservedAt) {
			return
		}
		f.high = r
	}
}

// SetConnected records the transport connection status.
func (f *Feed) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

// Connected reports whether the transport currently has a broker connection.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Latest returns the newest reading for the tank and whether it is fresh at
// time now. A zero reading (never updated) is never fresh.
func (f *Feed) Latest(tank Tank, now time.Time) (Reading, bool) {
	f.mu.RLock()
	var r Reading
	switch tank {
	case TankLow:
		r = f.low
	case TankHigh:
		r = f.high
	}
	staleAfter := f.staleAfter
	f.mu.RUnlock()

	if r.ObservedAt.IsZero() {
		return r, false
	}
	return r, now.Sub(r.ObservedAt) <= staleAfter
}

// Snapshot is a point-in-time view of both tanks, for the control loop and
// the status API. Value type, safe to use after the locks are released.
type Snapshot struct {
	Low       Reading
	High      Reading
	LowFresh  bool
	HighFresh bool
	Connected bool
}

// Snapshot returns both readings, their freshness at now, and the
// connection status in one consistent view.
func (f *Feed) Snapshot(now time.Time) Snapshot {
	f.mu.RLock()
	s := Snapshot{
		Low:       f.low,
		High:      f.high,
		Connected: f.connected,
	}
	staleAfter := f.staleAfter
	f.mu.RUnlock()

	s.LowFresh = !s.Low.ObservedAt.IsZero() && now.Sub(s.Low.ObservedAt) <= staleAfter
	s.HighFresh = !s.High.ObservedAt.IsZero() && now.Sub(s.High.ObservedAt) <= staleAfter
	return s
}
