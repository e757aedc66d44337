package telemetry

import (
	"testing"
	"time"
)

// handleLevel is exercised directly: the paho client is never connected in
// unit tests, only the payload decoding and feed update path.
func TestHandleLevel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)
	s := NewSource("tcp://127.0.0.1:1883", "c0619ab4f172", f)
	s.now = func() time.Time { return now }

	// Venus OS sends the level as a fraction.
	s.handleLevel(TankLow, []byte(`{"value": 0.42}`))

	r, fresh := f.Latest(TankLow, now)
	if !fresh {
		t.Fatal("reading not stored")
	}
	if r.Percentage != 42 {
		t.Errorf("expected 42%%, got %v", r.Percentage)
	}
	if !r.ObservedAt.Equal(now) {
		t.Errorf("expected observedAt %v, got %v", now, r.ObservedAt)
	}
}

func TestHandleLevelBadPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)
	s := NewSource("tcp://127.0.0.1:1883", "c0619ab4f172", f)
	s.now = func() time.Time { return now }

	for _, payload := range []string{`not json`, `{}`, `{"value": null}`} {
		s.handleLevel(TankHigh, []byte(payload))
	}

	if _, fresh := f.Latest(TankHigh, now); fresh {
		t.Error("bad payload produced a reading")
	}
}

func TestSourceTopics(t *testing.T) {
	f := NewFeed(60 * time.Second)
	s := NewSource("tcp://127.0.0.1:1883", "c0619ab4f172", f)

	if s.topicLow != "N/c0619ab4f172/tank/3/Level" {
		t.Errorf("unexpected low topic %s", s.topicLow)
	}
	if s.topicHigh != "N/c0619ab4f172/tank/4/Level" {
		t.Errorf("unexpected high topic %s", s.topicHigh)
	}
}

func TestHandleLevelClampsFraction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeed(60 * time.Second)
	s := NewSource("tcp://127.0.0.1:1883", "c0619ab4f172", f)
	s.now = func() time.Time { return now }

	s.handleLevel(TankLow, []byte(`{"value": 1.2}`))

	r, _ := f.Latest(TankLow, now)
	if r.Percentage != 100 {
		t.Errorf("expected clamp to 100, got %v", r.Percentage)
	}
}
