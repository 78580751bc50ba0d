package core

// Stepper motor control for the CUB axes. Each move is a trapezoidal
// profile: the step rate ramps up from StartSpeed to MaxSpeed and back
// down over the final steps. The latch and stop flag are checked before
// every step.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

// ErrStopped is returned when a move ends early because Stop was called
var ErrStopped = errors.New("motion stopped")

// SpeedProfile is a stepper velocity profile in steps per second
type SpeedProfile struct {
	Start float64 // rate of the first step
	Max   float64 // cruise rate
	Ramp  float64 // rate added per step while accelerating
}

// StepperConfig describes the wiring of one stepper driver
type StepperConfig struct {
	Name   string
	Dir    GPIOPin
	Step   GPIOPin
	Enable GPIOPin

	// InvertDir drives DIR low for the positive direction
	InvertDir bool

	// EnableActiveLow drives ENA low to energise the coils
	EnableActiveLow bool

	Speed SpeedProfile
}

// Stepper drives one stepper motor through a GPIODriver
type Stepper struct {
	cfg   StepperConfig
	gpio  GPIODriver
	estop *EmergencyStop
	clock Clock
	log   *slog.Logger

	// one move at a time
	moveMu sync.Mutex

	stop    atomic.Bool
	enabled atomic.Bool
}

// NewStepper configures the stepper pins as outputs, driven low
func NewStepper(gpio GPIODriver, estop *EmergencyStop, clock Clock, cfg StepperConfig) (*Stepper, error) {
	if cfg.Speed.Start <= 0 || cfg.Speed.Max < cfg.Speed.Start || cfg.Speed.Ramp < 0 {
		return nil, fmt.Errorf("stepper %s: invalid speed profile %+v", cfg.Name, cfg.Speed)
	}
	for _, pin := range []GPIOPin{cfg.Enable, cfg.Step, cfg.Dir} {
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("stepper %s: %w", cfg.Name, err)
		}
	}

	s := &Stepper{
		cfg:   cfg,
		gpio:  gpio,
		estop: estop,
		clock: clock,
		log:   slog.With("stepper", cfg.Name),
	}
	if err := s.write(cfg.Enable, cfg.EnableActiveLow); err != nil {
		return nil, err
	}
	s.log.Info("stepper configured", "dir", cfg.Dir, "step", cfg.Step, "enable", cfg.Enable)
	return s, nil
}

// Name returns the configured stepper name
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// MoveSteps steps count times in dir and returns the number of steps
// actually taken. The move ends early with ErrEmergencyStop, ErrStopped
// or the context error.
func (s *Stepper) MoveSteps(ctx context.Context, count int, dir protocol.Direction) (int, error) {
	return s.move(ctx, count, dir, nil)
}

// MoveUntil steps in dir until reached reports true or maxSteps have been
// taken. reached is polled before every step. It returns the steps taken
// and whether the condition was met.
func (s *Stepper) MoveUntil(ctx context.Context, maxSteps int, dir protocol.Direction, reached func() (bool, error)) (int, bool, error) {
	var met bool
	steps, err := s.move(ctx, maxSteps, dir, func() (bool, error) {
		ok, err := reached()
		met = ok
		return ok, err
	})
	return steps, met, err
}

func (s *Stepper) move(ctx context.Context, count int, dir protocol.Direction, until func() (bool, error)) (int, error) {
	s.moveMu.Lock()
	defer s.moveMu.Unlock()

	if err := s.start(dir); err != nil {
		return 0, err
	}
	s.log.Debug("move", "steps", count, "dir", dir)

	for i := 0; i < count; i++ {
		if s.estop.IsSet() {
			s.log.Warn("stepping halted by emergency stop", "taken", i)
			s.Disable()
			return i, ErrEmergencyStop
		}
		if s.stop.Load() {
			s.log.Info("stepping halted by stop flag", "taken", i)
			return i, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if until != nil {
			done, err := until()
			if err != nil {
				return i, err
			}
			if done {
				return i, nil
			}
		}

		s.clock.Sleep(StepInterval(s.cfg.Speed, i, count))
		if err := s.pulse(); err != nil {
			return i, err
		}
	}

	if until != nil {
		if _, err := until(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// start clears the stop flag, sets the direction and energises the coils
func (s *Stepper) start(dir protocol.Direction) error {
	if s.estop.IsSet() {
		s.log.Error("stepper not started due to emergency stop")
		return ErrEmergencyStop
	}
	if dir != protocol.Pos && dir != protocol.Neg {
		return fmt.Errorf("stepper %s: invalid direction %q", s.cfg.Name, dir)
	}
	s.stop.Store(false)

	if err := s.write(s.cfg.Dir, (dir == protocol.Pos) != s.cfg.InvertDir); err != nil {
		return err
	}
	if err := s.write(s.cfg.Enable, !s.cfg.EnableActiveLow); err != nil {
		return err
	}
	s.enabled.Store(true)
	return nil
}

func (s *Stepper) pulse() error {
	if err := s.write(s.cfg.Step, true); err != nil {
		return err
	}
	return s.write(s.cfg.Step, false)
}

// Stop ends the current move after the step in progress. The coils stay
// energised to hold position.
func (s *Stepper) Stop() {
	s.stop.Store(true)
}

// Disable de-energises the coils and drives the control pins low
func (s *Stepper) Disable() error {
	s.enabled.Store(false)
	return errors.Join(
		s.write(s.cfg.Enable, s.cfg.EnableActiveLow),
		s.write(s.cfg.Step, false),
		s.write(s.cfg.Dir, false),
	)
}

// Enabled reports whether the coils are energised
func (s *Stepper) Enabled() bool {
	return s.enabled.Load()
}

func (s *Stepper) write(pin GPIOPin, value bool) error {
	if err := s.gpio.SetPin(pin, value); err != nil {
		if errors.Is(err, ErrHardwareFault) {
			return err
		}
		return pinFault("write", pin, err)
	}
	return nil
}

// StepInterval returns the delay before step i of a count step move. The
// rate climbs by Ramp per step from Start, is capped at Max and falls
// symmetrically over the last steps.
func StepInterval(p SpeedProfile, i, count int) time.Duration {
	up := p.Start + p.Ramp*float64(i)
	down := p.Start + p.Ramp*float64(count-1-i)
	rate := min(up, down, p.Max)
	if rate < p.Start {
		rate = p.Start
	}
	return time.Duration(float64(time.Second) / rate)
}
