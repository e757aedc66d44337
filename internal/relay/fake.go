package relay

import "fmt"

// Transition records one applied state change for test assertions.
type Transition struct {
	Channel Channel
	On      bool
}

// FakeActuator is a test double that records actuation commands. It also
// backs the -sim mode, where no hardware is present.
type FakeActuator struct {
	// State holds the logical state per channel.
	State []bool

	// Transitions contains every applied state change, in order.
	// Idempotent Set calls do not append.
	Transitions []Transition

	// SetError, if set, will be returned by Set.
	SetError error

	// ShutdownCalls counts Shutdown invocations.
	ShutdownCalls int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates a FakeActuator with the given channel count,
// all channels off.
func NewFakeActuator(channels int) *FakeActuator {
	return &FakeActuator{State: make([]bool, channels)}
}

// Set records the logical state change.
func (f *FakeActuator) Set(ch Channel, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if int(ch) < 0 || int(ch) >= len(f.State) {
		return fmt.Errorf("%w: no channel %d", ErrFault, ch)
	}
	if f.State[ch] == on {
		return nil
	}
	f.State[ch] = on
	f.Transitions = append(f.Transitions, Transition{Channel: ch, On: on})
	return nil
}

// Shutdown forces every channel off. Always succeeds, even when SetError
// is set, mirroring the real actuator's best-effort de-energize.
func (f *FakeActuator) Shutdown() error {
	f.ShutdownCalls++
	for i := range f.State {
		if f.State[i] {
			f.State[i] = false
			f.Transitions = append(f.Transitions, Transition{Channel: Channel(i), On: false})
		}
	}
	return nil
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}

// AnyOn reports whether any channel is logically on.
func (f *FakeActuator) AnyOn() bool {
	for _, on := range f.State {
		if on {
			return true
		}
	}
	return false
}
