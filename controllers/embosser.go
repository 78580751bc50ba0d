package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Embosser fires the solenoid that drives the embossing plate
type Embosser struct {
	*Controller

	cfg  config.EmbosserConfig
	coil *core.DCOutput
	home *core.PhotoSensor
}

// NewEmbosser configures the coil output and the plate home sensor
func NewEmbosser(hw Hardware, cfg config.EmbosserConfig) (*Embosser, error) {
	coil, err := hw.dc("embosser coil", cfg.Coil)
	if err != nil {
		return nil, err
	}
	home, err := hw.sensor("embosser home", cfg.Home)
	if err != nil {
		return nil, err
	}

	e := &Embosser{cfg: cfg, coil: coil, home: home}
	e.Controller = newController(NameEmbosser, hw.EStop, e.selfTest, coil.Disable)
	e.ops.Register(protocol.OpEmboss, "emboss", func(ctx context.Context, cmd protocol.Command) error {
		if err := e.Activate(ctx); err != nil {
			return e.opErr(cmd, err.Error(), err)
		}
		return nil
	})
	return e, nil
}

// strike pulses the coil once. A dual-direction coil is driven down for
// half the pulse and pulled back for the other half.
func (e *Embosser) strike(ctx context.Context, observers ...core.Observer) error {
	length := e.cfg.Pulse.Duration
	if e.cfg.DualDir {
		return e.coil.SwapPulse(ctx, true, length/2, observers...)
	}
	return e.coil.Pulse(ctx, true, length, observers...)
}

// Activate performs one strike and waits for the plate to return home
func (e *Embosser) Activate(ctx context.Context) error {
	if err := e.strike(ctx); err != nil {
		return err
	}
	if err := e.home.WaitFor(ctx, true, pollInterval, e.cfg.Pulse.Duration); err != nil {
		return fmt.Errorf("Embosser did not return to Home Position: %w", err)
	}
	return nil
}

// selfTest strikes once and checks the plate left home and came back
func (e *Embosser) selfTest(ctx context.Context) error {
	home, err := e.home.Read()
	if err != nil {
		return err
	}
	if !home {
		return errors.New("Embosser not detected at Home Position at Initialisation")
	}

	left := false
	observe := func() error {
		home, err := e.home.Read()
		if !home {
			left = true
		}
		return err
	}
	if err := e.strike(ctx, observe); err != nil {
		return err
	}
	if !left {
		return errors.New("Embosser did not leave Home Position")
	}
	if err := e.home.WaitFor(ctx, true, pollInterval, e.cfg.Pulse.Duration); err != nil {
		return errors.New("Embosser did not return to Home Position")
	}
	return nil
}
