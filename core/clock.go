package core

import (
	"runtime"
	"sync"
	"time"
)

// Clock is the time source for every timed actuator operation: step
// intervals, coil pulses, sensor polls and feed timeouts.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock advances only when slept on, so simulated runs and tests
// finish immediately while timeouts still expire in order. Every sleeper
// shares one timeline.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock starts a virtual timeline at the current wall time
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: time.Now()}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	runtime.Gosched()
}

// Advance moves the timeline forward without sleeping
func (c *VirtualClock) Advance(d time.Duration) {
	c.Sleep(d)
}

// ScaledClock runs the wall clock at a multiple of its nominal rate. A
// scale of 0.1 makes each one second sleep last 100ms, and Now reports
// nominal time so timeouts keep their configured length.
type ScaledClock struct {
	scale float64
	start time.Time
}

// NewScaledClock returns a clock running at scale. Scale must be positive.
func NewScaledClock(scale float64) *ScaledClock {
	return &ScaledClock{scale: scale, start: time.Now()}
}

func (c *ScaledClock) Now() time.Time {
	elapsed := time.Since(c.start)
	return c.start.Add(time.Duration(float64(elapsed) / c.scale))
}

func (c *ScaledClock) Sleep(d time.Duration) {
	time.Sleep(time.Duration(float64(d) * c.scale))
}
