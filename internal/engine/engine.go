// Package engine contains the maneuver control state machine. A single
// goroutine owns every state transition: once per tick it fuses the
// telemetry snapshot, the schedule, and pending manual commands into relay
// actuation decisions, and records every maneuver in the history store.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moragues/pump-controller/internal/config"
	"github.com/moragues/pump-controller/internal/history"
	"github.com/moragues/pump-controller/internal/relay"
	"github.com/moragues/pump-controller/internal/telemetry"
)

// State is the engine's externally visible state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	// StateStopping is transient: it exists only between the relay-off
	// command and its confirmation, inside a single tick.
	StateStopping State = "STOPPING"
)

// recordOp is one unit of work for the history recorder goroutine.
type recordOp struct {
	finalize bool
	m        history.Maneuver // append: the open record; finalize: copy for re-append
	endedAt  time.Time
	end      history.Levels
	reason   history.StopReason

	// Retention pass instead of a record write. All store I/O shares the
	// recorder goroutine so no DELETE ever delays a tick.
	prune  bool
	cutoff time.Time
}

// recordQueueLen bounds the recorder mailbox. History writes are rare (two
// per maneuver), so a full queue means the store is badly wedged; ops are
// then dropped with a log line rather than ever blocking the tick.
const recordQueueLen = 16

// Engine is the maneuver control engine. Construct with New, drive with
// Run. All exported methods are safe for concurrent use; they only touch
// the command mailbox and the published snapshot, never the relay.
type Engine struct {
	feed     *telemetry.Feed
	actuator relay.Actuator
	store    history.Store
	channels []relay.Channel
	now      func() time.Time

	// Control-loop state. Owned by the tick goroutine; mirrored into
	// status under mu at the end of each tick.
	cfg       config.Snapshot
	schedule  Schedule
	state     State
	current   *history.Maneuver
	lastStart time.Time

	records chan recordOp
	done    chan struct{}

	mu             sync.Mutex
	pendingStart   bool
	pendingStop    bool
	pendingCfg     *config.Snapshot
	status         Status
	rejectedStarts int
	lastRelayErr   string
	lastHistoryErr string
}

// Status is a value-type snapshot of the engine for the UI collaborator.
type Status struct {
	State          State
	Current        *history.Maneuver // copy; nil when idle
	LastStart      time.Time
	Telemetry      telemetry.Snapshot
	RejectedStarts int
	LastRelayError string
	LastHistoryErr string
}

// New creates an Engine. The scheduler is seeded from the history store so
// a restart does not re-fire a window that already ran.
func New(cfg config.Snapshot, feed *telemetry.Feed, actuator relay.Actuator, store history.Store) (*Engine, error) {
	e := &Engine{
		feed:     feed,
		actuator: actuator,
		store:    store,
		now:      time.Now,
		state:    StateIdle,
		records:  make(chan recordOp, recordQueueLen),
		done:     make(chan struct{}),
	}
	for i := range cfg.RelayPins {
		e.channels = append(e.channels, relay.Channel(i))
	}
	e.applyConfig(cfg)

	last, ok, err := store.LastStartedAt()
	if err != nil {
		return nil, err
	}
	if ok {
		e.lastStart = last
	}
	e.publishStatus()
	return e, nil
}

func (e *Engine) applyConfig(cfg config.Snapshot) {
	hour, minute, err := config.ParseScheduledTime(cfg.ScheduledTime)
	if err != nil {
		// Validate ran before the snapshot got here.
		log.Printf("engine: unparseable scheduled_time %q", cfg.ScheduledTime)
	}
	// Relay channels are built once, at construction. Pin and polarity
	// changes need an actuator rebuild, so a reload cannot apply them.
	if len(e.cfg.RelayPins) > 0 && !equalPins(e.cfg.RelayPins, cfg.RelayPins) {
		log.Printf("engine: relay_pins changed in reload, ignored: pin and polarity changes need a restart")
		cfg.RelayPins = e.cfg.RelayPins
	}
	e.cfg = cfg
	e.feed.SetStaleAfter(cfg.StalenessTimeout())
	e.schedule = Schedule{
		Hour:              hour,
		Minute:            minute,
		Window:            cfg.ScheduleWindow(),
		MaintenancePeriod: cfg.MaintenancePeriod(),
	}
}

func equalPins(a, b []config.RelayPin) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RequestManualStart queues a manual start command. It is consumed at the
// next tick; a start while a maneuver is running is rejected there.
func (e *Engine) RequestManualStart() {
	e.mu.Lock()
	e.pendingStart = true
	e.mu.Unlock()
}

// RequestManualStop queues a manual stop command. Consumed at the next
// tick; a no-op when the engine is idle. The stop takes effect within one
// tick period of being queued.
func (e *Engine) RequestManualStop() {
	e.mu.Lock()
	e.pendingStop = true
	e.mu.Unlock()
}

// Reconfigure validates and queues a new configuration snapshot, applied
// at the next tick boundary. An invalid snapshot is rejected and the
// previous one stays in force.
func (e *Engine) Reconfigure(cfg config.Snapshot) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.pendingCfg = &cfg
	e.mu.Unlock()
	return nil
}

// CurrentState returns the published engine snapshot, with telemetry
// freshness evaluated at call time.
func (e *Engine) CurrentState() Status {
	e.mu.Lock()
	s := e.status
	if e.status.Current != nil {
		c := *e.status.Current
		s.Current = &c
	}
	e.mu.Unlock()
	s.Telemetry = e.feed.Snapshot(e.now())
	return s
}

// Run drives the control loop until ctx is cancelled. On exit an open
// maneuver is stopped and finalized, and pending history writes are
// drained.
func (e *Engine) Run(ctx context.Context) {
	go e.recorder()

	interval := e.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune := time.NewTicker(24 * time.Hour)
	defer prune.Stop()
	e.requestPrune(e.now())

	log.Printf("engine: started, tick=%v scheduled=%s", e.cfg.TickInterval(), e.cfg.ScheduledTime)

	for {
		select {
		case <-ctx.Done():
			now := e.now()
			if e.state == StateRunning {
				log.Printf("engine: shutting down with maneuver open, stopping pump")
				e.stopManeuver(now, e.feed.Snapshot(now), history.StopManual)
			}
			e.publishStatus()
			close(e.records)
			<-e.done
			return
		case t := <-ticker.C:
			e.Tick(t)
			if d := e.cfg.TickInterval(); d != interval {
				ticker.Reset(d)
				interval = d
			}
		case <-prune.C:
			e.requestPrune(e.now())
		}
	}
}

// Tick evaluates one control-loop step: the sole writer of relay state and
// maneuver records. Run calls it once per tick interval; tests drive it
// directly with a controlled clock.
func (e *Engine) Tick(now time.Time) {
	manualStart, manualStop, newCfg := e.takeCommands()
	if newCfg != nil {
		e.applyConfig(*newCfg)
		log.Printf("engine: configuration reloaded")
	}

	snap := e.feed.Snapshot(now)

	if e.state == StateRunning {
		// Fixed priority order: safety, staleness, manual, duration.
		switch {
		case snap.LowFresh && snap.Low.Percentage <= e.cfg.SafetyLowThreshold,
			snap.HighFresh && snap.High.Percentage >= e.cfg.SafetyHighThreshold:
			log.Printf("stop: safety violation (low=%.1f high=%.1f)", snap.Low.Percentage, snap.High.Percentage)
			e.stopManeuver(now, snap, history.StopSafetyViolation)
		case !snap.LowFresh || !snap.HighFresh:
			log.Printf("stop: telemetry stale (connected=%v)", snap.Connected)
			e.stopManeuver(now, snap, history.StopTelemetryStale)
		case manualStop:
			log.Printf("stop: manual")
			e.stopManeuver(now, snap, history.StopManual)
		case now.Sub(e.current.StartedAt) >= e.maxDuration(e.current.Trigger):
			log.Printf("stop: max duration for %s maneuver reached", e.current.Trigger)
			e.stopManeuver(now, snap, history.StopDurationExceeded)
		default:
			if manualStart {
				log.Printf("engine: manual start rejected, maneuver already running")
			}
		}
		e.publishStatus()
		return
	}

	// Idle. A pending manual stop was consumed above as part of
	// takeCommands and is a no-op here.
	trigger, due := e.dueTrigger(now, manualStart)
	if !due {
		e.publishStatus()
		return
	}

	if !e.startPermitted(snap) {
		e.mu.Lock()
		e.rejectedStarts++
		e.mu.Unlock()
		log.Printf("engine: %s start blocked (low=%.1f fresh=%v, high=%.1f fresh=%v)",
			trigger, snap.Low.Percentage, snap.LowFresh, snap.High.Percentage, snap.HighFresh)
		e.publishStatus()
		return
	}

	e.startManeuver(now, snap, trigger)
	e.publishStatus()
}

func (e *Engine) takeCommands() (start, stop bool, cfg *config.Snapshot) {
	e.mu.Lock()
	start, stop, cfg = e.pendingStart, e.pendingStop, e.pendingCfg
	e.pendingStart, e.pendingStop, e.pendingCfg = false, false, nil
	e.mu.Unlock()
	return start, stop, cfg
}

// dueTrigger picks the start trigger for this tick:
// manual > scheduled > maintenance.
func (e *Engine) dueTrigger(now time.Time, manualStart bool) (history.TriggerType, bool) {
	switch {
	case manualStart:
		return history.TriggerManual, true
	case e.schedule.ScheduledDue(now, e.lastStart):
		return history.TriggerScheduled, true
	case e.schedule.MaintenanceDue(now, e.lastStart):
		return history.TriggerMaintenance, true
	}
	return "", false
}

// startPermitted checks the start gate: both readings fresh, low tank above
// its safety threshold, high tank below its.
func (e *Engine) startPermitted(snap telemetry.Snapshot) bool {
	return snap.LowFresh && snap.HighFresh &&
		snap.Low.Percentage > e.cfg.SafetyLowThreshold &&
		snap.High.Percentage < e.cfg.SafetyHighThreshold
}

func (e *Engine) maxDuration(t history.TriggerType) time.Duration {
	switch t {
	case history.TriggerManual:
		return e.cfg.MaxDurationManual()
	case history.TriggerMaintenance:
		return e.cfg.MaintenanceDuration()
	default:
		return e.cfg.MaxDurationScheduled()
	}
}

// startManeuver energizes the relays and opens a maneuver record. Relay
// actuation comes first; the history write is handed to the recorder
// goroutine and never delays it.
func (e *Engine) startManeuver(now time.Time, snap telemetry.Snapshot, trigger history.TriggerType) {
	for _, ch := range e.channels {
		if err := e.actuator.Set(ch, true); err != nil {
			e.relayFault(err)
			return
		}
	}

	low, high := snap.Low.Percentage, snap.High.Percentage
	m := history.Maneuver{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		StartedAt:   now,
		StartLevels: history.Levels{Low: &low, High: &high},
	}
	e.current = &m
	e.state = StateRunning
	e.lastStart = now
	log.Printf("start: %s maneuver %s (low=%.1f high=%.1f)", trigger, m.ID, low, high)

	e.record(recordOp{m: m})
}

// stopManeuver de-energizes the relays and finalizes the open record.
// STOPPING collapses to IDLE within the tick once the relay command is
// confirmed.
func (e *Engine) stopManeuver(now time.Time, snap telemetry.Snapshot, reason history.StopReason) {
	e.state = StateStopping
	for _, ch := range e.channels {
		if err := e.actuator.Set(ch, false); err != nil {
			e.relayFault(err)
			break
		}
	}
	e.state = StateIdle

	m := e.current
	e.current = nil
	if m == nil {
		return
	}

	end := history.Levels{}
	if snap.LowFresh {
		v := snap.Low.Percentage
		end.Low = &v
	}
	if snap.HighFresh {
		v := snap.High.Percentage
		end.High = &v
	}
	log.Printf("stop: %s maneuver %s after %v (%s)", m.Trigger, m.ID, now.Sub(m.StartedAt).Round(time.Second), reason)

	e.record(recordOp{finalize: true, m: *m, endedAt: now, end: end, reason: reason})
}

// relayFault handles a failed actuation: force everything off, abandon the
// current maneuver, go idle. The open record, if any, is finalized as a
// safety violation so no energized window is ever unaccounted for.
func (e *Engine) relayFault(err error) {
	log.Printf("relay fault: %v, forcing shutdown", err)
	if sderr := e.actuator.Shutdown(); sderr != nil {
		log.Printf("relay shutdown failed: %v", sderr)
	}
	e.mu.Lock()
	e.lastRelayErr = err.Error()
	e.mu.Unlock()

	if e.current != nil {
		m := *e.current
		e.current = nil
		e.record(recordOp{finalize: true, m: m, endedAt: e.now(), reason: history.StopSafetyViolation})
	}
	e.state = StateIdle
}

// record hands an op to the recorder goroutine, dropping rather than
// blocking when the queue is full.
func (e *Engine) record(op recordOp) {
	select {
	case e.records <- op:
	default:
		log.Printf("history: queue full, dropping %s op", opName(op))
		e.setHistoryErr(errors.New("history queue full"))
	}
}

// Flush applies currently queued history writes synchronously. Used when
// the engine is driven by Tick alone, without Run's recorder goroutine.
func (e *Engine) Flush() {
	for {
		select {
		case op := <-e.records:
			e.applyRecord(op)
		default:
			return
		}
	}
}

// recorder applies history writes off the control loop.
func (e *Engine) recorder() {
	defer close(e.done)
	for op := range e.records {
		e.applyRecord(op)
	}
}

// applyRecord performs one store write. A failed append is retried when the
// matching finalize arrives (the store reports the record missing), so a
// transient store outage loses nothing as long as it heals within a
// maneuver.
func (e *Engine) applyRecord(op recordOp) {
	if op.prune {
		e.applyPrune(op.cutoff)
		return
	}
	var err error
	if op.finalize {
		err = e.store.Finalize(op.m.ID, op.endedAt, op.end, op.reason)
		if errors.Is(err, history.ErrNotFound) {
			// Append never landed; write the whole record now.
			if err = e.store.Append(op.m); err == nil {
				err = e.store.Finalize(op.m.ID, op.endedAt, op.end, op.reason)
			}
		}
	} else {
		err = e.store.Append(op.m)
	}
	if err != nil {
		log.Printf("history: %s maneuver %s: %v", opName(op), op.m.ID, err)
	}
	e.setHistoryErr(err)
}

func opName(op recordOp) string {
	switch {
	case op.prune:
		return "prune"
	case op.finalize:
		return "finalize"
	}
	return "append"
}

func (e *Engine) setHistoryErr(err error) {
	e.mu.Lock()
	if err != nil {
		e.lastHistoryErr = err.Error()
	} else {
		e.lastHistoryErr = ""
	}
	e.mu.Unlock()
}

// requestPrune queues a retention pass for the recorder goroutine. Runs at
// startup and on a daily timer; the DELETE itself never runs on the
// control-loop goroutine.
func (e *Engine) requestPrune(now time.Time) {
	e.record(recordOp{prune: true, cutoff: now.AddDate(-e.cfg.RetentionYears, 0, 0)})
}

func (e *Engine) applyPrune(cutoff time.Time) {
	n, err := e.store.Prune(cutoff)
	if err != nil {
		log.Printf("history: prune: %v", err)
		e.setHistoryErr(err)
		return
	}
	if n > 0 {
		log.Printf("history: pruned %d maneuvers older than %s", n, cutoff.Format("2006-01-02"))
	}
}

// publishStatus mirrors the control-loop state into the snapshot read by
// CurrentState.
func (e *Engine) publishStatus() {
	e.mu.Lock()
	e.status = Status{
		State:          e.state,
		LastStart:      e.lastStart,
		RejectedStarts: e.rejectedStarts,
		LastRelayError: e.lastRelayErr,
		LastHistoryErr: e.lastHistoryErr,
	}
	if e.current != nil {
		c := *e.current
		e.status.Current = &c
	}
	e.mu.Unlock()
}
