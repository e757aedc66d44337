//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// PinConfig describes one physical channel: BCM pin number and polarity.
// Polarity is fixed at construction; changing it means rebuilding the
// actuator, so logical and physical state can never disagree mid-flight.
type PinConfig struct {
	Pin        int
	ActiveHigh bool
}

// RealActuator drives relay channels on actual hardware using the Linux
// GPIO character device.
type RealActuator struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
	pins  []PinConfig
	state []bool // logical state per channel
}

// NewRealActuator requests the configured pins as outputs, initially
// logically off.
func NewRealActuator(pins []PinConfig) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	a := &RealActuator{
		chip:  chip,
		pins:  pins,
		state: make([]bool, len(pins)),
	}

	for _, pc := range pins {
		line, err := chip.RequestLine(pc.Pin, gpiocdev.AsOutput(physicalLevel(false, pc.ActiveHigh)))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request relay pin %d: %w", pc.Pin, err)
		}
		a.lines = append(a.lines, line)
	}

	return a, nil
}

// Set drives the channel to the given logical state.
func (a *RealActuator) Set(ch Channel, on bool) error {
	if int(ch) < 0 || int(ch) >= len(a.lines) {
		return fmt.Errorf("%w: no channel %d", ErrFault, ch)
	}
	if a.state[ch] == on {
		return nil
	}
	if err := a.lines[ch].SetValue(physicalLevel(on, a.pins[ch].ActiveHigh)); err != nil {
		return fmt.Errorf("%w: set pin %d: %v", ErrFault, a.pins[ch].Pin, err)
	}
	a.state[ch] = on
	return nil
}

// Shutdown forces every channel logically off, continuing past individual
// failures so every line gets a de-energize attempt.
func (a *RealActuator) Shutdown() error {
	var errs []error
	for i := range a.lines {
		if err := a.lines[i].SetValue(physicalLevel(false, a.pins[i].ActiveHigh)); err != nil {
			errs = append(errs, fmt.Errorf("pin %d: %w", a.pins[i].Pin, err))
			continue
		}
		a.state[i] = false
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: shutdown: %v", ErrFault, errs)
	}
	return nil
}

// Close releases GPIO resources. Lines are reconfigured to input with
// pull-down (matching Pi boot defaults) before closing so external relay
// boards see a clean state across restarts.
func (a *RealActuator) Close() error {
	var errs []error

	for i, line := range a.lines {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", a.pins[i].Pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", a.pins[i].Pin, err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
