package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Feeder moves the paper: line feeds with a stepper, sheet loading with a
// DC motor, and paper-size detection from two reflective sensors.
type Feeder struct {
	*Controller

	cfg     config.FeederConfig
	stepper *core.Stepper
	motor   *core.DCOutput

	input   *core.PhotoSensor
	output  *core.PhotoSensor
	a4      *core.PhotoSensor
	braille *core.PhotoSensor
}

// NewFeeder configures the line feed stepper, the paper motor and the
// four paper sensors
func NewFeeder(hw Hardware, cfg config.FeederConfig) (*Feeder, error) {
	f := &Feeder{cfg: cfg}

	var err error
	if f.stepper, err = hw.stepper(NameFeeder, cfg.Motor, cfg.Speed); err != nil {
		return nil, err
	}
	if f.motor, err = hw.dc("paper motor", cfg.PaperMotor); err != nil {
		return nil, err
	}
	for _, s := range []struct {
		sensor **core.PhotoSensor
		name   string
		cfg    config.Sensor
	}{
		{&f.input, "paper input", cfg.InputSensor},
		{&f.output, "paper output", cfg.OutputSensor},
		{&f.a4, "a4 paper", cfg.A4Sensor},
		{&f.braille, "braille paper", cfg.BrailleSensor},
	} {
		if *s.sensor, err = hw.sensor(s.name, s.cfg); err != nil {
			return nil, err
		}
	}

	f.Controller = newController(NameFeeder, hw.EStop, f.selfTest, func() error {
		return errors.Join(f.stepper.Disable(), f.motor.Disable())
	})
	f.halt = f.stepper.Stop
	f.ops.Register(protocol.OpFeed, "feed", f.feed)
	f.ops.Register(protocol.OpPaper, "paper", f.paper)
	f.ops.Register(protocol.OpHome, "home", func(context.Context, protocol.Command) error {
		return nil
	})
	return f, nil
}

// PaperSize reports the usable cells per line and lines per sheet of the
// paper in the tray. The Braille sensor takes precedence over the A4
// sensor; with neither detecting paper the configured default is used.
func (f *Feeder) PaperSize() (config.PaperSize, error) {
	kind, err := f.PaperKind()
	if err != nil {
		return config.PaperSize{}, err
	}
	size, ok := f.cfg.PaperSize(kind)
	if !ok {
		return config.PaperSize{}, fmt.Errorf("no size configured for paper %q", kind)
	}
	return size, nil
}

// PaperKind reads the size sensors
func (f *Feeder) PaperKind() (string, error) {
	braille, err := f.braille.Read()
	if err != nil {
		return "", err
	}
	if braille {
		return config.PaperBraille, nil
	}
	a4, err := f.a4.Read()
	if err != nil {
		return "", err
	}
	if a4 {
		return config.PaperA4, nil
	}
	return f.cfg.DefaultPaper, nil
}

func (f *Feeder) feed(ctx context.Context, cmd protocol.Command) error {
	lines, err := strconv.Atoi(cmd.Index)
	if err != nil || lines < 0 {
		return f.commErr(cmd.Index, "Index conversion to Integer Failed")
	}
	if cmd.Dir != protocol.Pos && cmd.Dir != protocol.Neg {
		return f.commErr(cmd.Dir.String(), fmt.Sprintf("Direction portion of message for %s operation", cmd.Op))
	}
	return f.FeedLines(ctx, lines, cmd.Dir)
}

// FeedLines moves the paper by n lines
func (f *Feeder) FeedLines(ctx context.Context, n int, dir protocol.Direction) error {
	steps := n * f.cfg.LineSteps
	if steps == 0 {
		return nil
	}
	taken, err := f.stepper.MoveSteps(ctx, steps, dir)
	if err != nil {
		return fmt.Errorf("line feed stopped after %d of %d steps: %w", taken, steps, err)
	}
	return nil
}

func (f *Feeder) paper(ctx context.Context, cmd protocol.Command) error {
	var err error
	switch cmd.Index {
	case protocol.IndexLoad:
		err = f.Load(ctx)
	case protocol.IndexEject:
		err = f.Eject(ctx)
	default:
		return f.commErr(cmd.Index, fmt.Sprintf("Index portion of message for %s operation", cmd.Op))
	}
	if err != nil {
		return f.opErr(cmd, err.Error(), err)
	}
	return nil
}

// Load runs the paper motor until the input sensor detects a sheet
func (f *Feeder) Load(ctx context.Context) error {
	present, err := f.input.Read()
	if err != nil {
		return err
	}
	if present {
		return errors.New("Can't Feed paper, paper detected in embosser")
	}

	on, err := f.motor.OnUntil(ctx, true, f.input.Read, pollInterval, f.cfg.FeedTimeout.Duration)
	if errors.Is(err, core.ErrSensorTimeout) {
		return fmt.Errorf("Paper not detected after feeding: %w", err)
	}
	if err != nil {
		return err
	}
	f.log.Info("paper loaded", "after", on)
	return nil
}

// Eject line-feeds the sheet out until the output sensor clears
func (f *Feeder) Eject(ctx context.Context) error {
	present, err := f.output.Read()
	if err != nil {
		return err
	}
	if !present {
		return errors.New("No paper detected to eject")
	}

	outputClear := func() (bool, error) {
		p, err := f.output.Read()
		return !p, err
	}
	steps, cleared, err := f.stepper.MoveUntil(ctx, f.cfg.MaxLines*f.cfg.LineSteps, protocol.Pos, outputClear)
	if err != nil {
		return err
	}
	if !cleared {
		return errors.New("Paper still detected after ejection")
	}
	f.log.Info("paper ejected", "lines", (steps+f.cfg.LineSteps-1)/f.cfg.LineSteps)
	return nil
}

// selfTest reads every sensor once and reports the paper in the tray
func (f *Feeder) selfTest(context.Context) error {
	for _, s := range []*core.PhotoSensor{f.input, f.output} {
		if _, err := s.Read(); err != nil {
			return err
		}
	}
	kind, err := f.PaperKind()
	if err != nil {
		return err
	}
	size, err := f.PaperSize()
	if err != nil {
		return err
	}
	f.log.Info("paper detected", "paper", kind, "cells", size.Cells, "lines", size.Lines)
	return nil
}
