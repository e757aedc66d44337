package internal

import (
	"testing"
	"time"

	"github.com/moragues/pump-controller/internal/config"
	"github.com/moragues/pump-controller/internal/engine"
	"github.com/moragues/pump-controller/internal/history"
	"github.com/moragues/pump-controller/internal/relay"
	"github.com/moragues/pump-controller/internal/telemetry"
)

func integrationConfig() config.Snapshot {
	return config.Snapshot{
		RelayPins: []config.RelayPin{
			{Pin: 6, ActiveHigh: true},
			{Pin: 5, ActiveHigh: true},
		},
		ScheduledTime:               "12:00",
		MaxDurationScheduledMinutes: 30,
		MaxDurationManualMinutes:    10,
		MaintenancePeriodDays:       7,
		MaintenanceDurationSeconds:  120,
		SafetyLowThreshold:          15,
		SafetyHighThreshold:         99,
		StalenessTimeoutSeconds:     60,
		ScheduleWindowSeconds:       60,
		RetentionYears:              3,
		TickIntervalSeconds:         5,
	}
}

// TestIntegrationScheduledManeuver walks a whole day of ticks through the
// engine with fakes: idle morning, scheduled start at noon, pumping until
// the low tank reaches its safety limit, then idle again with one finalized
// record in the store.
func TestIntegrationScheduledManeuver(t *testing.T) {
	cfg := integrationConfig()
	feed := telemetry.NewFeed(cfg.StalenessTimeout())
	src := telemetry.NewFakeSource(feed)
	act := relay.NewFakeActuator(len(cfg.RelayPins))
	store := history.NewMemoryStore()

	eng, err := engine.New(cfg, feed, act, store)
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("source start: %v", err)
	}

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 5 * time.Second

	// The low tank drains 0.5% per pumping tick; the high tank fills.
	low, high := 18.0, 50.0

	var startedTick, stoppedTick time.Time
	for now := day.Add(11*time.Hour + 59*time.Minute); now.Before(day.Add(12*time.Hour + 10*time.Minute)); now = now.Add(tick) {
		src.Emit(telemetry.TankLow, low, now)
		src.Emit(telemetry.TankHigh, high, now)

		wasRunning := eng.CurrentState().State == engine.StateRunning
		eng.Tick(now)
		isRunning := eng.CurrentState().State == engine.StateRunning

		if !wasRunning && isRunning {
			startedTick = now
		}
		if wasRunning && !isRunning {
			stoppedTick = now
		}
		if isRunning {
			low -= 0.5
			high += 0.3
		}
	}
	eng.Flush()

	if startedTick.IsZero() {
		t.Fatal("scheduled maneuver never started")
	}
	windowStart := day.Add(12 * time.Hour)
	if startedTick.Before(windowStart) || !startedTick.Before(windowStart.Add(time.Minute)) {
		t.Errorf("maneuver started outside the scheduled window: %v", startedTick)
	}
	if stoppedTick.IsZero() {
		t.Fatal("maneuver never stopped")
	}
	if act.AnyOn() {
		t.Error("relays energized after the run")
	}

	records, err := store.Query(time.Time{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 finalized maneuver, got %d", len(records))
	}
	m := records[0]
	if m.Trigger != history.TriggerScheduled {
		t.Errorf("expected scheduled trigger, got %s", m.Trigger)
	}
	if m.StopReason != history.StopSafetyViolation {
		t.Errorf("expected safety_violation stop (low tank drained), got %s", m.StopReason)
	}
	if m.EndLevels.Low == nil || *m.EndLevels.Low > 15 {
		t.Errorf("end low level should be at or under the threshold: %+v", m.EndLevels)
	}
}

// TestIntegrationManualOverride checks the operator path: manual start
// outside the window, then a manual stop honored on the next tick.
func TestIntegrationManualOverride(t *testing.T) {
	cfg := integrationConfig()
	feed := telemetry.NewFeed(cfg.StalenessTimeout())
	src := telemetry.NewFakeSource(feed)
	act := relay.NewFakeActuator(len(cfg.RelayPins))
	store := history.NewMemoryStore()

	eng, err := engine.New(cfg, feed, act, store)
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	src.Start()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src.Emit(telemetry.TankLow, 40, now)
	src.Emit(telemetry.TankHigh, 60, now)

	eng.RequestManualStart()
	eng.Tick(now)
	if eng.CurrentState().State != engine.StateRunning {
		t.Fatal("manual start not honored")
	}

	// Stop command queued between ticks; honored within one tick period.
	eng.RequestManualStop()
	now = now.Add(5 * time.Second)
	src.Emit(telemetry.TankLow, 39, now)
	src.Emit(telemetry.TankHigh, 61, now)
	eng.Tick(now)

	if eng.CurrentState().State != engine.StateIdle {
		t.Fatal("manual stop not honored within one tick")
	}
	eng.Flush()

	records, _ := store.Query(time.Time{})
	if len(records) != 1 || records[0].StopReason != history.StopManual {
		t.Fatalf("expected one manual_stop record, got %+v", records)
	}
	if records[0].Trigger != history.TriggerManual {
		t.Errorf("expected manual trigger, got %s", records[0].Trigger)
	}
}
