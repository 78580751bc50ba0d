package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DCConfig describes a DC output: a paper feed motor or the embosser coil
type DCConfig struct {
	Name   string
	Dir    GPIOPin
	Enable GPIOPin
}

// DCOutput switches a DC load through a direction and an enable pin
type DCOutput struct {
	cfg   DCConfig
	gpio  GPIODriver
	estop *EmergencyStop
	clock Clock
	log   *slog.Logger

	mu   sync.Mutex
	stop atomic.Bool
}

// NewDCOutput configures both pins as outputs, driven low
func NewDCOutput(gpio GPIODriver, estop *EmergencyStop, clock Clock, cfg DCConfig) (*DCOutput, error) {
	for _, pin := range []GPIOPin{cfg.Enable, cfg.Dir} {
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("dc output %s: %w", cfg.Name, err)
		}
	}
	d := &DCOutput{
		cfg:   cfg,
		gpio:  gpio,
		estop: estop,
		clock: clock,
		log:   slog.With("output", cfg.Name),
	}
	d.log.Info("dc output configured", "dir", cfg.Dir, "enable", cfg.Enable)
	return d, nil
}

// Name returns the configured output name
func (d *DCOutput) Name() string {
	return d.cfg.Name
}

func (d *DCOutput) write(pin GPIOPin, value bool) error {
	if err := d.gpio.SetPin(pin, value); err != nil {
		if errors.Is(err, ErrHardwareFault) {
			return err
		}
		return pinFault("write", pin, err)
	}
	return nil
}

func (d *DCOutput) enable(forward bool) error {
	if d.estop.IsSet() {
		d.log.Error("dc output not started due to emergency stop")
		return ErrEmergencyStop
	}
	d.stop.Store(false)
	if err := d.write(d.cfg.Dir, forward); err != nil {
		return err
	}
	return d.write(d.cfg.Enable, true)
}

// Disable switches the output off
func (d *DCOutput) Disable() error {
	return errors.Join(d.write(d.cfg.Enable, false), d.write(d.cfg.Dir, false))
}

// Stop ends the current activation and switches the output off
func (d *DCOutput) Stop() {
	d.stop.Store(true)
}

// Observer is called on every tick while an output is on. An error ends
// the activation.
type Observer func() error

// pulseTick is the slice length of a timed activation
const pulseTick = 10 * time.Millisecond

// wait sleeps for length in slices of tick so stop and the latch end it
// early. It reports how long the output was on.
func (d *DCOutput) wait(ctx context.Context, length, tick time.Duration, observers []Observer) (time.Duration, error) {
	start := d.clock.Now()
	for {
		for _, observe := range observers {
			if err := observe(); err != nil {
				return d.clock.Now().Sub(start), err
			}
		}
		on := d.clock.Now().Sub(start)
		if on >= length {
			return on, nil
		}
		if d.estop.IsSet() {
			return on, ErrEmergencyStop
		}
		if d.stop.Load() {
			return on, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return on, err
		}
		d.clock.Sleep(min(tick, length-on))
	}
}

// Pulse switches the output on in one direction for length
func (d *DCOutput) Pulse(ctx context.Context, forward bool, length time.Duration, observers ...Observer) error {
	_, err := d.OnFor(ctx, forward, length, observers...)
	return err
}

// SwapPulse drives the output for length in the first direction, then
// for length in the other. Used by dual-direction embosser coils to pull
// the plate back actively.
func (d *DCOutput) SwapPulse(ctx context.Context, forwardFirst bool, length time.Duration, observers ...Observer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("swap pulse", "forward_first", forwardFirst, "length", length)
	defer d.Disable()

	for _, forward := range []bool{forwardFirst, !forwardFirst} {
		if err := d.enable(forward); err != nil {
			return err
		}
		if _, err := d.wait(ctx, length, min(length, pulseTick), observers); err != nil {
			return err
		}
	}
	return nil
}

// OnFor switches the output on for length and reports how long it was on
func (d *DCOutput) OnFor(ctx context.Context, forward bool, length time.Duration, observers ...Observer) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("activating output", "forward", forward, "length", length)
	if err := d.enable(forward); err != nil {
		return 0, err
	}
	defer d.Disable()

	return d.wait(ctx, length, min(length, pulseTick), observers)
}

// OnUntil switches the output on until reached reports true, polling
// every poll. It fails with ErrSensorTimeout when timeout passes first.
func (d *DCOutput) OnUntil(ctx context.Context, forward bool, reached func() (bool, error), poll, timeout time.Duration) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("activating output until condition", "forward", forward, "timeout", timeout)
	if err := d.enable(forward); err != nil {
		return 0, err
	}
	defer d.Disable()

	start := d.clock.Now()
	for {
		on := d.clock.Now().Sub(start)
		done, err := reached()
		if err != nil {
			return on, err
		}
		if done {
			return on, nil
		}
		if d.estop.IsSet() {
			d.log.Info("dc output stopping due to emergency stop")
			return on, ErrEmergencyStop
		}
		if d.stop.Load() {
			return on, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return on, err
		}
		if on >= timeout {
			return on, fmt.Errorf("dc output %s: condition not reached within %v: %w", d.cfg.Name, timeout, ErrSensorTimeout)
		}
		d.clock.Sleep(poll)
	}
}
