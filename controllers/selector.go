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

// ToolCount is the number of faces on the tool wheel
const ToolCount = 8

// TranslateTool converts a 3-dot column half-pattern into a tool index.
// The pattern lists the top dot first, so it is reversed to read as a
// binary number with the top face in bit 0.
func TranslateTool(half string) (int, error) {
	if len(half) != 3 {
		return 0, fmt.Errorf("tool pattern %q: want 3 dots", half)
	}
	rev := []byte{half[2], half[1], half[0]}
	tool, err := strconv.ParseUint(string(rev), 2, 8)
	if err != nil {
		return 0, fmt.Errorf("tool pattern %q: %w", half, err)
	}
	return int(tool), nil
}

// ToolPath returns the shortest rotation from tool current to tool
// target. A half-turn resolves in the positive direction.
func ToolPath(current, target, stepsPerTool int) (int, protocol.Direction) {
	delta := target - current
	if delta > ToolCount/2 {
		delta -= ToolCount
	} else if delta < -(ToolCount/2 - 1) {
		delta += ToolCount
	}

	if delta > 0 {
		return delta * stepsPerTool, protocol.Pos
	}
	return -delta * stepsPerTool, protocol.Neg
}

// Selector rotates the tool wheel to the face combination of a column
type Selector struct {
	*Controller

	cfg     config.SelectorConfig
	stepper *core.Stepper
	home    *core.PhotoSensor

	tool int
	// set when a move was interrupted and the wheel position is unknown
	lost bool
}

// NewSelector configures the tool stepper and its home sensor
func NewSelector(hw Hardware, cfg config.SelectorConfig) (*Selector, error) {
	stepper, err := hw.stepper(NameSelector, cfg.Motor, cfg.Speed)
	if err != nil {
		return nil, err
	}
	home, err := hw.sensor("selector home", cfg.Home)
	if err != nil {
		return nil, err
	}

	s := &Selector{cfg: cfg, stepper: stepper, home: home, tool: cfg.InitialTool, lost: true}
	s.Controller = newController(NameSelector, hw.EStop, s.selfTest, stepper.Disable)
	s.halt = stepper.Stop
	s.ops.Register(protocol.OpHome, "home", func(ctx context.Context, _ protocol.Command) error {
		return s.Home(ctx)
	})
	s.ops.Register(protocol.OpMove, "select", s.selectTool)
	return s, nil
}

// Tool returns the selected tool index
func (s *Selector) Tool() int {
	return s.tool
}

// Home rotates the blank face up using the home sensor, along the
// shortest path from the current tool
func (s *Selector) Home(ctx context.Context) error {
	dir := protocol.Pos
	if !s.lost {
		_, dir = ToolPath(s.tool, 0, s.cfg.StepsPerTool)
	}

	n, reached, err := s.stepper.MoveUntil(ctx, s.cfg.StepsPerTool*(ToolCount+1), dir, s.home.Read)
	if err != nil {
		s.lost = true
		return fmt.Errorf("homing tool: %w", err)
	}
	if !reached {
		s.lost = true
		return fmt.Errorf("tool home not detected after %d steps", n)
	}
	s.tool, s.lost = 0, false
	return nil
}

func (s *Selector) selectTool(ctx context.Context, cmd protocol.Command) error {
	target, err := TranslateTool(cmd.Index)
	if err != nil {
		return s.commErr(cmd.Index, "Conversion to Base 2 Index Failed")
	}

	if target == 0 || s.lost {
		if err := s.Home(ctx); err != nil {
			return s.opErr(cmd, "Unable to return the tool to the blank position", err)
		}
		if target == 0 {
			return nil
		}
	}

	steps, dir := ToolPath(s.tool, target, s.cfg.StepsPerTool)
	if steps == 0 {
		return nil
	}
	n, err := s.stepper.MoveSteps(ctx, steps, dir)
	if err != nil {
		s.lost = true
		return s.opErr(cmd, fmt.Sprintf("tool move interrupted after %d of %d steps", n, steps), err)
	}
	s.log.Debug("tool selected", "from", s.tool, "to", target, "steps", steps, "dir", dir)
	s.tool = target
	return nil
}

// selfTest homes the wheel, turns it one full rotation and confirms the
// blank face is up again
func (s *Selector) selfTest(ctx context.Context) error {
	if err := s.Home(ctx); err != nil {
		return errors.New("Unable to return the Embosser Tool to the blank position")
	}
	if _, err := s.stepper.MoveSteps(ctx, ToolCount*s.cfg.StepsPerTool, protocol.Pos); err != nil {
		return fmt.Errorf("rotation test: %w", err)
	}
	home, err := s.home.Read()
	if err != nil {
		return err
	}
	if !home {
		s.lost = true
		return errors.New("Rotation Test Failed - Tool not home")
	}
	return nil
}
