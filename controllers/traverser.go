package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Component identifiers
const (
	NameTraverser = "Traverser"
	NameSelector  = "Selector"
	NameFeeder    = "Feeder"
	NameEmbosser  = "Embosser"
)

// Traverser moves the embossing head across the page
type Traverser struct {
	*Controller

	cfg     config.TraverserConfig
	stepper *core.Stepper
	home    *core.PhotoSensor

	// steps from home, owned by the run loop
	position int
}

// NewTraverser configures the head stepper and its home sensor
func NewTraverser(hw Hardware, cfg config.TraverserConfig) (*Traverser, error) {
	stepper, err := hw.stepper(NameTraverser, cfg.Motor, cfg.Speed)
	if err != nil {
		return nil, err
	}
	home, err := hw.sensor("traverser home", cfg.Home)
	if err != nil {
		return nil, err
	}

	t := &Traverser{cfg: cfg, stepper: stepper, home: home}
	t.Controller = newController(NameTraverser, hw.EStop, t.selfTest, stepper.Disable)
	t.halt = stepper.Stop
	t.ops.Register(protocol.OpHome, "home", func(ctx context.Context, _ protocol.Command) error {
		return t.Home(ctx)
	})
	t.ops.Register(protocol.OpMove, "move", t.move)
	return t, nil
}

// Position returns the head position in steps from home
func (t *Traverser) Position() int {
	return t.position
}

// Home returns the head to the home sensor. It first seeks back the
// tracked position, then creeps in HomeIncrement steps until the sensor
// trips, bounded by the maximum travel.
func (t *Traverser) Home(ctx context.Context) error {
	total := 0
	budget := t.cfg.MaxSteps + t.cfg.CharSteps
	seek := t.position
	if seek <= 0 {
		seek = t.cfg.HomeIncrement
	}

	for total <= budget {
		n, reached, err := t.stepper.MoveUntil(ctx, seek, protocol.Neg, t.home.Read)
		total += n
		if err != nil {
			return fmt.Errorf("homing head: %w", err)
		}
		if reached {
			t.log.Debug("head home", "steps", total)
			t.position = 0
			return nil
		}
		seek = t.cfg.HomeIncrement
	}
	return fmt.Errorf("head home not detected after %d steps", total)
}

func (t *Traverser) move(ctx context.Context, cmd protocol.Command) error {
	var pitch int
	switch cmd.Index {
	case protocol.IndexCol:
		pitch = t.cfg.ColSteps
	case protocol.IndexChar:
		pitch = t.cfg.CharSteps
	default:
		return t.commErr(cmd.Index, fmt.Sprintf("Index portion of message for %s operation", cmd.Op))
	}

	steps := pitch * cmd.Repeat()
	switch cmd.Dir {
	case protocol.Pos:
		if t.position+steps > t.cfg.MaxSteps {
			return t.opErr(cmd, fmt.Sprintf("move to step %d beyond maximum travel %d", t.position+steps, t.cfg.MaxSteps), nil)
		}
		n, err := t.stepper.MoveSteps(ctx, steps, protocol.Pos)
		t.position += n
		if err != nil {
			return t.opErr(cmd, "head move interrupted", err)
		}

	case protocol.Neg:
		// the home sensor ends a move that would run past home
		n, reached, err := t.stepper.MoveUntil(ctx, steps, protocol.Neg, t.home.Read)
		t.position -= n
		if err != nil {
			return t.opErr(cmd, "head move interrupted", err)
		}
		if reached && n < steps {
			t.position = 0
			return t.opErr(cmd, fmt.Sprintf("head reached home after %d of %d steps", n, steps), nil)
		}

	default:
		return t.commErr(cmd.Dir.String(), fmt.Sprintf("Direction portion of message for %s operation", cmd.Index))
	}
	return nil
}

// selfTest homes the head, moves out half the maximum travel and back
// and confirms the head is home again
func (t *Traverser) selfTest(ctx context.Context) error {
	if err := t.Home(ctx); err != nil {
		return errors.New("Unable to return the Embosser Head to the home position")
	}

	half := t.cfg.MaxSteps / 2
	out, err := t.stepper.MoveSteps(ctx, half, protocol.Pos)
	if err != nil {
		return fmt.Errorf("movement test: %w", err)
	}
	if home, err := t.home.Read(); err != nil {
		return err
	} else if home {
		return errors.New("Head did not leave the home position")
	}

	back, reached, err := t.stepper.MoveUntil(ctx, half+t.cfg.HomeIncrement, protocol.Neg, t.home.Read)
	if err != nil {
		return fmt.Errorf("movement test: %w", err)
	}
	t.log.Info("movement test completed", "expected", out, "actual", back)
	if !reached {
		return errors.New("Head Not at Home After Test")
	}
	t.position = 0
	return nil
}
