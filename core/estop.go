package core

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrEmergencyStop is returned by every motion primitive once the
// emergency stop latch is set
var ErrEmergencyStop = errors.New("emergency stop latched")

// EmergencyStop is the process-wide motion latch. Once tripped it stays
// set for the rest of the process; there is no reset.
type EmergencyStop struct {
	tripped atomic.Bool

	mu     sync.Mutex
	reason string
	done   chan struct{}
}

// NewEmergencyStop creates an untripped latch
func NewEmergencyStop() *EmergencyStop {
	return &EmergencyStop{done: make(chan struct{})}
}

// Trip sets the latch. Only the first call records its reason.
func (e *EmergencyStop) Trip(source, reason string) {
	if !e.tripped.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	e.reason = source + ": " + reason
	e.mu.Unlock()
	close(e.done)

	slog.Error("emergency stop", "source", source, "reason", reason)
}

// IsSet reports whether the latch has been tripped
func (e *EmergencyStop) IsSet() bool {
	return e.tripped.Load()
}

// Done is closed when the latch trips, for use in select loops
func (e *EmergencyStop) Done() <-chan struct{} {
	return e.done
}

// Reason returns the source and reason of the trip
func (e *EmergencyStop) Reason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}
