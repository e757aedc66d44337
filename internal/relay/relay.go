// Package relay drives the pump relay channels behind a logical on/off
// contract with configurable polarity.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

import "errors"

// ErrFault is returned (wrapped) when an actuation command fails. The
// engine treats it as fatal for the current maneuver: it forces Shutdown
// and goes idle.
var ErrFault = errors.New("relay fault")

// Channel identifies one logical output channel (index into the configured
// pin list).
type Channel int

// Actuator switches relay channels on and off.
type Actuator interface {
	// Set drives the channel to the given logical state. Idempotent:
	// repeated calls with the same value leave the physical state
	// unchanged after the first application.
	Set(ch Channel, on bool) error

	// Shutdown forces every channel logically off. It must be called on
	// process exit and on any unrecoverable fault, so no channel is left
	// energized.
	Shutdown() error

	// Close releases hardware resources. Implies nothing about channel
	// state; call Shutdown first.
	Close() error
}

// physicalLevel maps a logical state through the channel polarity.
// activeHigh: logical on = line high; otherwise logical on = line low.
func physicalLevel(logicalOn, activeHigh bool) int {
	on := logicalOn == activeHigh
	if on {
		return 1
	}
	return 0
}
