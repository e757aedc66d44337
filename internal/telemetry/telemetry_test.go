package telemetry

import (
	"testing"
	"time"
)

func TestLatestFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)

	// Never updated: not fresh.
	if _, fresh := f.Latest(TankLow, now); fresh {
		t.Error("zero reading reported fresh")
	}

	f.Update(Reading{Tank: TankLow, Percentage: 42, ObservedAt: now})

	r, fresh := f.Latest(TankLow, now)
	if !fresh {
		t.Error("fresh reading reported stale")
	}
	if r.Percentage != 42 {
		t.Errorf("expected 42%%, got %v", r.Percentage)
	}

	// Exactly at the timeout still counts as fresh.
	if _, fresh := f.Latest(TankLow, now.Add(60*time.Second)); !fresh {
		t.Error("reading at staleness boundary reported stale")
	}

	// Past the timeout: stale, but the value survives for diagnostics.
	r, fresh = f.Latest(TankLow, now.Add(61*time.Second))
	if fresh {
		t.Error("old reading reported fresh")
	}
	if r.Percentage != 42 {
		t.Errorf("stale reading lost its value, got %v", r.Percentage)
	}
}

func TestUpdateDropsOutOfOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)

	f.Update(Reading{Tank: TankHigh, Percentage: 50, ObservedAt: now})
	f.Update(Reading{Tank: TankHigh, Percentage: 10, ObservedAt: now.Add(-time.Second)})

	r, _ := f.Latest(TankHigh, now)
	if r.Percentage != 50 {
		t.Errorf("out-of-order update overwrote newer reading, got %v", r.Percentage)
	}

	// Equal timestamp supersedes: observedAt is non-decreasing, not unique.
	f.Update(Reading{Tank: TankHigh, Percentage: 51, ObservedAt: now})
	r, _ = f.Latest(TankHigh, now)
	if r.Percentage != 51 {
		t.Errorf("equal-timestamp update was dropped, got %v", r.Percentage)
	}
}

func TestUpdateClampsPercentage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)

	f.Update(Reading{Tank: TankLow, Percentage: -5, ObservedAt: now})
	if r, _ := f.Latest(TankLow, now); r.Percentage != 0 {
		t.Errorf("expected clamp to 0, got %v", r.Percentage)
	}

	f.Update(Reading{Tank: TankLow, Percentage: 120, ObservedAt: now.Add(time.Second)})
	if r, _ := f.Latest(TankLow, now); r.Percentage != 100 {
		t.Errorf("expected clamp to 100, got %v", r.Percentage)
	}
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)

	f.Update(Reading{Tank: TankLow, Percentage: 20, ObservedAt: now})
	f.Update(Reading{Tank: TankHigh, Percentage: 80, ObservedAt: now.Add(-2 * time.Minute)})
	f.SetConnected(true)

	s := f.Snapshot(now)
	if !s.LowFresh {
		t.Error("low reading should be fresh")
	}
	if s.HighFresh {
		t.Error("high reading should be stale")
	}
	if s.Low.Percentage != 20 || s.High.Percentage != 80 {
		t.Errorf("unexpected snapshot levels low=%v high=%v", s.Low.Percentage, s.High.Percentage)
	}
	if !s.Connected {
		t.Error("snapshot lost connected flag")
	}
}

func TestDisconnectKeepsReadings(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)
	src := NewFakeSource(f)

	if err := src.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !f.Connected() {
		t.Error("feed not connected after source start")
	}

	src.Emit(TankLow, 33, now)
	src.Disconnect()

	if f.Connected() {
		t.Error("feed still connected after disconnect")
	}
	r, fresh := f.Latest(TankLow, now.Add(10*time.Second))
	if !fresh || r.Percentage != 33 {
		t.Errorf("reading lost on disconnect: %v fresh=%v", r.Percentage, fresh)
	}
}

func TestSetStaleAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)
	f.Update(Reading{Tank: TankLow, Percentage: 42, ObservedAt: now})

	if _, fresh := f.Latest(TankLow, now.Add(30*time.Second)); !fresh {
		t.Fatal("reading should be fresh under the original timeout")
	}

	f.SetStaleAfter(5 * time.Second)
	if _, fresh := f.Latest(TankLow, now.Add(30*time.Second)); fresh {
		t.Error("reading still fresh under the tightened timeout")
	}
	s := f.Snapshot(now.Add(30 * time.Second))
	if s.LowFresh {
		t.Error("snapshot still fresh under the tightened timeout")
	}
}
