//go:build !linux

package relay

import "errors"

// PinConfig describes one physical channel: BCM pin number and polarity.
type PinConfig struct {
	Pin        int
	ActiveHigh bool
}

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(pins []PinConfig) (*RealActuator, error) {
	return nil, errors.New("relay: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (a *RealActuator) Set(ch Channel, on bool) error {
	return errors.New("relay: not supported")
}

// Shutdown is not implemented on non-Linux platforms.
func (a *RealActuator) Shutdown() error {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error {
	return nil
}
