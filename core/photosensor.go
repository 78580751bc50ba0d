package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrSensorTimeout is returned when a sensor does not reach the awaited
// state in time
var ErrSensorTimeout = errors.New("sensor timeout")

// SensorConfig describes one photo sensor input
type SensorConfig struct {
	Name string
	Pin  GPIOPin

	// TrueLevel is the pin level at which the sensor reports true
	TrueLevel bool

	// SampleCount is the number of consecutive agreeing samples a read
	// requires. Zero or one reads the pin once.
	SampleCount int
	SampleTime  time.Duration
}

// PhotoSensor reads a digital photo sensor. The pin is pulled up.
type PhotoSensor struct {
	cfg   SensorConfig
	gpio  GPIODriver
	clock Clock
	log   *slog.Logger
}

// NewPhotoSensor configures the sensor pin as a pulled-up input
func NewPhotoSensor(gpio GPIODriver, clock Clock, cfg SensorConfig) (*PhotoSensor, error) {
	if err := gpio.ConfigureInputPullUp(cfg.Pin); err != nil {
		return nil, fmt.Errorf("sensor %s: %w", cfg.Name, err)
	}
	p := &PhotoSensor{
		cfg:   cfg,
		gpio:  gpio,
		clock: clock,
		log:   slog.With("sensor", cfg.Name),
	}
	p.log.Info("photo sensor configured", "pin", cfg.Pin, "true_level", cfg.TrueLevel)
	return p, nil
}

// Name returns the configured sensor name
func (p *PhotoSensor) Name() string {
	return p.cfg.Name
}

func (p *PhotoSensor) sample() (bool, error) {
	level, err := p.gpio.GetPin(p.cfg.Pin)
	if err != nil {
		if !errors.Is(err, ErrHardwareFault) {
			err = pinFault("read", p.cfg.Pin, err)
		}
		return false, fmt.Errorf("sensor %s: %w", p.cfg.Name, err)
	}
	return level == p.cfg.TrueLevel, nil
}

// Read returns the sensor state. With oversampling the pin is sampled
// until SampleCount consecutive samples agree.
func (p *PhotoSensor) Read() (bool, error) {
	value, err := p.sample()
	if err != nil || p.cfg.SampleCount <= 1 {
		return value, err
	}

	agree := 1
	// bounded so a chattering input still returns
	for tries := 0; agree < p.cfg.SampleCount && tries < p.cfg.SampleCount*4; tries++ {
		p.clock.Sleep(p.cfg.SampleTime)
		next, err := p.sample()
		if err != nil {
			return false, err
		}
		if next == value {
			agree++
		} else {
			value, agree = next, 1
		}
	}
	p.log.Debug("sensor read", "value", value)
	return value, nil
}

// WaitFor polls the sensor every poll until it reads want. It fails with
// ErrSensorTimeout after timeout, or with the context error.
func (p *PhotoSensor) WaitFor(ctx context.Context, want bool, poll, timeout time.Duration) error {
	deadline := p.clock.Now().Add(timeout)
	for {
		got, err := p.Read()
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.clock.Now().Before(deadline) {
			return fmt.Errorf("sensor %s did not read %v within %v: %w", p.cfg.Name, want, timeout, ErrSensorTimeout)
		}
		p.clock.Sleep(poll)
	}
}
