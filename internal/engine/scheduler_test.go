package engine

import (
	"testing"
	"time"
)

func testSchedule() Schedule {
	return Schedule{
		Hour:              12,
		Minute:            0,
		Window:            time.Minute,
		MaintenancePeriod: 7 * 24 * time.Hour,
	}
}

func TestScheduledDueWindow(t *testing.T) {
	s := testSchedule()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var never time.Time

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", day.Add(11*time.Hour + 59*time.Minute + 59*time.Second), false},
		{"window start", day.Add(12 * time.Hour), true},
		{"mid window", day.Add(12*time.Hour + 30*time.Second), true},
		{"last second", day.Add(12*time.Hour + 59*time.Second), true},
		{"window end", day.Add(12*time.Hour + time.Minute), false},
		{"afternoon", day.Add(15 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.ScheduledDue(tc.now, never); got != tc.want {
				t.Errorf("ScheduledDue(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestScheduledFiresOncePerDay(t *testing.T) {
	s := testSchedule()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !s.ScheduledDue(windowStart, time.Time{}) {
		t.Fatal("not due at window start")
	}

	// A maneuver started inside the window suppresses re-firing for the
	// rest of it.
	lastStart := windowStart.Add(5 * time.Second)
	if s.ScheduledDue(windowStart.Add(10*time.Second), lastStart) {
		t.Error("re-fired within the same window")
	}
	if s.ScheduledDue(windowStart.Add(59*time.Second), lastStart) {
		t.Error("re-fired at the end of the same window")
	}

	// Yesterday's run does not suppress today.
	if !s.ScheduledDue(windowStart.AddDate(0, 0, 1), lastStart) {
		t.Error("yesterday's maneuver suppressed today's window")
	}

	// A maneuver earlier the same day (e.g. manual at 09:00) does not
	// suppress the scheduled window.
	if !s.ScheduledDue(windowStart.Add(30*time.Second), windowStart.Add(-3*time.Hour)) {
		t.Error("morning maneuver suppressed the scheduled window")
	}
}

// Restart mid-window: lastStart comes back from the persisted history, so
// the window must not re-fire.
func TestScheduledSurvivesRestart(t *testing.T) {
	s := testSchedule()
	windowStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	persistedStart := windowStart.Add(2 * time.Second)

	if s.ScheduledDue(windowStart.Add(40*time.Second), persistedStart) {
		t.Error("window re-fired after restart")
	}
}

func TestMaintenanceDue(t *testing.T) {
	s := testSchedule()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Never due without a previous maneuver.
	if s.MaintenanceDue(now, time.Time{}) {
		t.Error("maintenance due with empty history")
	}

	if s.MaintenanceDue(now, now.Add(-6*24*time.Hour)) {
		t.Error("maintenance due before period elapsed")
	}
	if !s.MaintenanceDue(now, now.Add(-7*24*time.Hour)) {
		t.Error("maintenance not due at exactly the period")
	}
	if !s.MaintenanceDue(now, now.Add(-30*24*time.Hour)) {
		t.Error("maintenance not due long after the period")
	}
}
