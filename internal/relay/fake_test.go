package relay

import (
	"errors"
	"testing"
)

func TestSetIdempotent(t *testing.T) {
	a := NewFakeActuator(2)

	if err := a.Set(0, true); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	// Repeated commands with the same value change nothing physically.
	if err := a.Set(0, true); err != nil {
		t.Fatalf("repeated Set returned error: %v", err)
	}
	if err := a.Set(0, true); err != nil {
		t.Fatalf("repeated Set returned error: %v", err)
	}

	if len(a.Transitions) != 1 {
		t.Errorf("expected 1 transition, got %d", len(a.Transitions))
	}
	if !a.State[0] {
		t.Error("channel 0 should be on")
	}
	if a.State[1] {
		t.Error("channel 1 should be off")
	}
}

func TestSetUnknownChannel(t *testing.T) {
	a := NewFakeActuator(2)
	err := a.Set(2, true)
	if err == nil {
		t.Fatal("Set accepted unknown channel")
	}
	if !errors.Is(err, ErrFault) {
		t.Errorf("expected ErrFault, got %v", err)
	}
}

func TestShutdownForcesAllOff(t *testing.T) {
	a := NewFakeActuator(2)
	a.Set(0, true)
	a.Set(1, true)

	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if a.AnyOn() {
		t.Error("channels still on after shutdown")
	}
	if a.ShutdownCalls != 1 {
		t.Errorf("expected 1 shutdown call, got %d", a.ShutdownCalls)
	}

	// Shutdown works even when Set is faulting.
	a.Set(0, true)
	a.SetError = errors.New("stuck driver")
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned error with faulting Set: %v", err)
	}
	if a.AnyOn() {
		t.Error("channels still on after shutdown with faulting Set")
	}
}

func TestPhysicalLevelPolarity(t *testing.T) {
	cases := []struct {
		logicalOn  bool
		activeHigh bool
		want       int
	}{
		{true, true, 1},
		{false, true, 0},
		{true, false, 0},
		{false, false, 1},
	}
	for _, tc := range cases {
		got := physicalLevel(tc.logicalOn, tc.activeHigh)
		if got != tc.want {
			t.Errorf("physicalLevel(on=%v, activeHigh=%v) = %d, want %d",
				tc.logicalOn, tc.activeHigh, got, tc.want)
		}
	}
}
