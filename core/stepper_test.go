package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

func testStepperConfig() StepperConfig {
	return StepperConfig{
		Name:   "test",
		Dir:    21,
		Step:   20,
		Enable: 16,
		Speed:  SpeedProfile{Start: 500, Max: 1200, Ramp: 15},
	}
}

func newTestStepper(t *testing.T) (*Stepper, *SimGPIO, *EmergencyStop) {
	t.Helper()
	gpio := NewSimGPIO()
	estop := NewEmergencyStop()
	s, err := NewStepper(gpio, estop, NewVirtualClock(), testStepperConfig())
	if err != nil {
		t.Fatalf("NewStepper failed: %v", err)
	}
	return s, gpio, estop
}

func TestStepperMoveSteps(t *testing.T) {
	s, gpio, _ := newTestStepper(t)

	n, err := s.MoveSteps(context.Background(), 29, protocol.Pos)
	if err != nil {
		t.Fatalf("MoveSteps failed: %v", err)
	}
	if n != 29 {
		t.Errorf("Expected 29 steps, got %d", n)
	}
	if edges := gpio.RisingEdges(20); edges != 29 {
		t.Errorf("Expected 29 step pulses, got %d", edges)
	}
	if !gpio.Level(21) {
		t.Error("Expected DIR high for POS")
	}
	if !gpio.Level(16) || !s.Enabled() {
		t.Error("Expected stepper enabled after move")
	}

	if _, err := s.MoveSteps(context.Background(), 3, protocol.Neg); err != nil {
		t.Fatalf("MoveSteps failed: %v", err)
	}
	if gpio.Level(21) {
		t.Error("Expected DIR low for NEG")
	}
}

func TestStepperInvalidDirection(t *testing.T) {
	s, _, _ := newTestStepper(t)
	if _, err := s.MoveSteps(context.Background(), 1, protocol.DirNone); err == nil {
		t.Error("Expected error for NULL direction")
	}
}

func TestStepperEmergencyStop(t *testing.T) {
	s, gpio, estop := newTestStepper(t)

	// trip the latch part way through a move
	var pulses int
	gpio.OnChange(20, func(v bool) {
		if v {
			pulses++
			if pulses == 5 {
				estop.Trip("test", "scenario")
			}
		}
	})

	n, err := s.MoveSteps(context.Background(), 100, protocol.Pos)
	if !errors.Is(err, ErrEmergencyStop) {
		t.Fatalf("Expected ErrEmergencyStop, got %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 steps before stop, got %d", n)
	}
	if gpio.Level(16) {
		t.Error("Expected enable low after emergency stop")
	}

	// every later move is rejected with no effect
	before := gpio.RisingEdges(20)
	n, err = s.MoveSteps(context.Background(), 10, protocol.Neg)
	if n != 0 || !errors.Is(err, ErrEmergencyStop) {
		t.Errorf("Expected (0, ErrEmergencyStop), got (%d, %v)", n, err)
	}
	if gpio.RisingEdges(20) != before {
		t.Error("Expected no step pulses after emergency stop")
	}
}

func TestStepperMoveUntil(t *testing.T) {
	s, gpio, _ := newTestStepper(t)

	pulses := 0
	gpio.OnChange(20, func(v bool) {
		if v {
			pulses++
		}
	})

	n, reached, err := s.MoveUntil(context.Background(), 100, protocol.Neg, func() (bool, error) {
		return pulses >= 12, nil
	})
	if err != nil {
		t.Fatalf("MoveUntil failed: %v", err)
	}
	if !reached || n != 12 {
		t.Errorf("Expected condition reached after 12 steps, got reached=%v steps=%d", reached, n)
	}

	n, reached, err = s.MoveUntil(context.Background(), 20, protocol.Neg, func() (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("MoveUntil failed: %v", err)
	}
	if reached || n != 20 {
		t.Errorf("Expected 20 steps without reaching, got reached=%v steps=%d", reached, n)
	}
}

func TestStepperStop(t *testing.T) {
	s, gpio, _ := newTestStepper(t)

	pulses := 0
	gpio.OnChange(20, func(v bool) {
		if v {
			pulses++
			if pulses == 3 {
				s.Stop()
			}
		}
	})

	n, err := s.MoveSteps(context.Background(), 50, protocol.Pos)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Expected ErrStopped, got %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 steps, got %d", n)
	}
	if !s.Enabled() {
		t.Error("Expected stop to keep holding torque")
	}

	// the flag is cleared by the next move
	if n, err := s.MoveSteps(context.Background(), 2, protocol.Pos); err != nil || n != 2 {
		t.Errorf("Expected next move to complete, got (%d, %v)", n, err)
	}
}

func TestStepperHardwareFault(t *testing.T) {
	s, gpio, _ := newTestStepper(t)
	gpio.InjectFault(20, errors.New("i2c nack"))

	_, err := s.MoveSteps(context.Background(), 4, protocol.Pos)
	if !errors.Is(err, ErrHardwareFault) {
		t.Errorf("Expected hardware fault, got %v", err)
	}
}

func TestStepInterval(t *testing.T) {
	p := SpeedProfile{Start: 500, Max: 1200, Ramp: 15}

	tests := []struct {
		i, count int
		rate     float64
	}{
		{0, 200, 500},
		{10, 200, 650},
		{100, 200, 1200},
		{199, 200, 500},
		{190, 200, 635},
		{0, 1, 500},
	}
	for _, tt := range tests {
		want := time.Duration(float64(time.Second) / tt.rate)
		if got := StepInterval(p, tt.i, tt.count); got != want {
			t.Errorf("StepInterval(%d, %d): expected %v, got %v", tt.i, tt.count, want, got)
		}
	}
}

func TestNewStepperRejectsBadProfile(t *testing.T) {
	cfg := testStepperConfig()
	cfg.Speed.Max = 100
	if _, err := NewStepper(NewSimGPIO(), NewEmergencyStop(), SystemClock{}, cfg); err == nil {
		t.Error("Expected error for max speed below start speed")
	}
}
