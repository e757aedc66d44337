package engine

import "time"

// Schedule decides when time-based maneuvers are due. Pure functions over
// the clock and the last maneuver start time; the start time is persisted
// in the history store, so a restart cannot re-fire a window that already
// ran.
type Schedule struct {
	// Daily maneuver time (local clock).
	Hour   int
	Minute int

	// Window is how long past the daily time the trigger stays eligible.
	Window time.Duration

	// MaintenancePeriod is the maximum time between maneuvers before an
	// anti-stagnation run is due.
	MaintenancePeriod time.Duration
}

// windowStart returns the start of the scheduled window on now's calendar
// day, in now's location.
func (s Schedule) windowStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
}

// ScheduledDue reports whether the daily maneuver should fire: now is
// inside the window and no maneuver has already started inside it. Starting
// a maneuver advances lastStart into the window, so the trigger fires at
// most once per day.
func (s Schedule) ScheduledDue(now, lastStart time.Time) bool {
	start := s.windowStart(now)
	if now.Before(start) || now.Sub(start) >= s.Window {
		return false
	}
	if !lastStart.IsZero() && !lastStart.Before(start) && lastStart.Sub(start) < s.Window {
		return false
	}
	return true
}

// MaintenanceDue reports whether the pump has sat idle long enough to need
// an anti-stagnation run. Never due before the first maneuver ever: the
// period is measured from a known last run.
func (s Schedule) MaintenanceDue(now, lastStart time.Time) bool {
	if lastStart.IsZero() {
		return false
	}
	return now.Sub(lastStart) >= s.MaintenancePeriod
}
