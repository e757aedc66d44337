package telemetry

import "time"

// FakeSource feeds scripted readings into a Feed for tests.
type FakeSource struct {
	Feed *Feed

	// Started tracks if Start was called.
	Started bool

	// Closed tracks if Close was called.
	Closed bool

	// StartError, if set, will be returned by Start.
	StartError error
}

// NewFakeSource creates a FakeSource writing into feed.
func NewFakeSource(feed *Feed) *FakeSource {
	return &FakeSource{Feed: feed}
}

// Start marks the source started and flips the feed to connected.
func (f *FakeSource) Start() error {
	if f.StartError != nil {
		return f.StartError
	}
	f.Started = true
	f.Feed.SetConnected(true)
	return nil
}

// Close marks the source closed and the feed disconnected.
func (f *FakeSource) Close() error {
	f.Closed = true
	f.Feed.SetConnected(false)
	return nil
}

// Emit stores a reading, as if it had arrived from the broker.
func (f *FakeSource) Emit(tank Tank, percentage float64, at time.Time) {
	f.Feed.Update(Reading{Tank: tank, Percentage: percentage, ObservedAt: at})
}

// Disconnect simulates a transport drop: the feed keeps its readings but
// reports disconnected, and they go stale as time passes.
func (f *FakeSource) Disconnect() {
	f.Feed.SetConnected(false)
}
