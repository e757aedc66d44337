// Package sim generates synthetic tank levels so the daemon can run
// without a broker or hardware.
package sim

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/moragues/pump-controller/internal/telemetry"
)

// Simulator drives a Feed with a slow random walk: the low tank drifts
// down, the high tank drifts up, both clamped to [0,100].
type Simulator struct {
	feed     *telemetry.Feed
	interval time.Duration
	low      float64
	high     float64
	rng      *rand.Rand
}

// New creates a Simulator with the given update interval and plausible
// starting levels.
func New(feed *telemetry.Feed, interval time.Duration) *Simulator {
	return &Simulator{
		feed:     feed,
		interval: interval,
		low:      45,
		high:     75,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits readings until ctx is cancelled. The feed reports connected
// for the duration of the run.
func (s *Simulator) Run(ctx context.Context) {
	s.feed.SetConnected(true)
	defer s.feed.SetConnected(false)

	log.Printf("sim: generating tank levels every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.emit(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.step()
			s.emit(t)
		}
	}
}

func (s *Simulator) step() {
	s.low = clamp(s.low + s.rng.Float64()*0.8 - 0.5)
	s.high = clamp(s.high + s.rng.Float64()*0.6 - 0.2)
}

func (s *Simulator) emit(t time.Time) {
	s.feed.Update(telemetry.Reading{Tank: telemetry.TankLow, Percentage: s.low, ObservedAt: t})
	s.feed.Update(telemetry.Reading{Tank: telemetry.TankHigh, Percentage: s.high, ObservedAt: t})
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
