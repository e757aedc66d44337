// Package history is the durable, append-only log of pump maneuvers.
package history

import (
	"errors"
	"time"
)

// TriggerType is the cause of a maneuver.
type TriggerType string

const (
	TriggerScheduled   TriggerType = "scheduled"
	TriggerManual      TriggerType = "manual"
	TriggerMaintenance TriggerType = "maintenance"
)

// StopReason records why a maneuver ended. Every closed maneuver has one.
type StopReason string

const (
	StopDurationExceeded StopReason = "duration_exceeded"
	StopSafetyViolation  StopReason = "safety_violation"
	StopManual           StopReason = "manual_stop"
	StopTelemetryStale   StopReason = "telemetry_stale"
)

// Levels holds one pair of tank percentages. Nil pointer fields mean the
// value was unknown (stale or never received) when sampled.
type Levels struct {
	Low  *float64
	High *float64
}

// Maneuver is one complete pump-run episode. Created open (EndedAt nil) at
// start, finalized exactly once, immutable thereafter.
type Maneuver struct {
	ID          string
	Trigger     TriggerType
	StartedAt   time.Time
	EndedAt     *time.Time
	StartLevels Levels
	EndLevels   Levels
	StopReason  StopReason // empty while open
}

// ErrNotFound is returned by Finalize for an unknown maneuver ID.
var ErrNotFound = errors.New("history: maneuver not found")

// Store persists maneuvers. Append and Finalize must be durable before
// returning. Open records are not exposed by Query until finalized.
type Store interface {
	// Append persists a new open maneuver record.
	Append(m Maneuver) error

	// Finalize closes the record: sets end time, end levels, and stop
	// reason. The record is immutable afterwards.
	Finalize(id string, endedAt time.Time, end Levels, reason StopReason) error

	// Query returns finalized maneuvers started at or after since, in
	// start-time order.
	Query(since time.Time) ([]Maneuver, error)

	// LastStartedAt returns the start time of the most recent maneuver,
	// open or finalized. ok is false when the log is empty. This seeds
	// the scheduler across restarts.
	LastStartedAt() (t time.Time, ok bool, err error)

	// Prune deletes finalized records older than the retention cutoff.
	// Never called from the control loop.
	Prune(cutoff time.Time) (int64, error)

	// Close releases the underlying storage.
	Close() error
}
