// Package lifecycle builds the CUB: it opens the hardware, starts the
// four actuator controllers, waits for each to report ready and shuts
// everything down again however the run ends.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/controllers"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/host/mcu"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
	"github.com/Chertan/CUB-Control-Software/supervisor"
)

// ReadyTimeout bounds the startup self-test of each controller
const ReadyTimeout = time.Minute

// System is a running CUB
type System struct {
	Config   *config.Config
	Platform *Platform
	EStop    *core.EmergencyStop

	Traverser *controllers.Traverser
	Selector  *controllers.Selector
	Feeder    *controllers.Feeder
	Embosser  *controllers.Embosser

	Dispatcher *supervisor.Dispatcher
	Paper      config.PaperSize

	controllers []*controllers.Controller
	cancel      context.CancelFunc
	log         *slog.Logger
}

// Start opens the platform and starts the controllers. It returns once
// every controller has passed its self-test. Any failure shuts down what
// was started and is returned as an *protocol.InitialisationError.
func Start(ctx context.Context, cfg *config.Config) (*System, error) {
	platform, err := OpenPlatform(cfg)
	if err != nil {
		return nil, &protocol.InitialisationError{Component: "GPIO", Message: err.Error()}
	}
	return StartOn(ctx, cfg, platform)
}

// StartOn starts the controllers on an open platform. The platform is
// closed by Shutdown, or before returning an error.
func StartOn(ctx context.Context, cfg *config.Config, platform *Platform) (*System, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := &System{
		Config:     cfg,
		Platform:   platform,
		EStop:      core.NewEmergencyStop(),
		Dispatcher: supervisor.NewDispatcher(),
		cancel:     cancel,
		log:        logs.Component(slog.Default(), "Lifecycle"),
	}

	if err := s.build(); err != nil {
		s.Shutdown()
		return nil, err
	}

	for _, c := range s.controllers {
		go func() {
			if err := c.Run(runCtx); err != nil {
				s.log.Error("controller stopped", "component", c.Name(), "error", err)
			}
		}()
	}
	if platform.MCU != nil {
		go s.forwardEmergencyStop(runCtx, platform.MCU)
	}

	for _, c := range s.controllers {
		if err := s.awaitReady(ctx, c); err != nil {
			s.Shutdown()
			return nil, err
		}
		s.Dispatcher.Register(c.Name(), c.Endpoint())
	}

	paper, err := s.Feeder.PaperSize()
	if err != nil {
		s.Shutdown()
		return nil, &protocol.InitialisationError{Component: controllers.NameFeeder, Message: err.Error()}
	}
	s.Paper = paper
	s.log.Info("embosser ready", "cells", paper.Cells, "lines", paper.Lines)
	return s, nil
}

func (s *System) build() error {
	hw := controllers.Hardware{GPIO: s.Platform.GPIO, EStop: s.EStop, Clock: s.Platform.Clock}
	fail := func(component string, err error) error {
		return &protocol.InitialisationError{Component: component, Message: err.Error()}
	}

	var err error
	if s.Traverser, err = controllers.NewTraverser(hw, s.Config.Hardware.Traverser); err != nil {
		return fail(controllers.NameTraverser, err)
	}
	if s.Selector, err = controllers.NewSelector(hw, s.Config.Hardware.Selector); err != nil {
		return fail(controllers.NameSelector, err)
	}
	if s.Feeder, err = controllers.NewFeeder(hw, s.Config.Hardware.Feeder); err != nil {
		return fail(controllers.NameFeeder, err)
	}
	if s.Embosser, err = controllers.NewEmbosser(hw, s.Config.Hardware.Embosser); err != nil {
		return fail(controllers.NameEmbosser, err)
	}

	s.controllers = []*controllers.Controller{
		s.Traverser.Controller,
		s.Selector.Controller,
		s.Feeder.Controller,
		s.Embosser.Controller,
	}
	return nil
}

// awaitReady reads the readiness ack of c
func (s *System) awaitReady(ctx context.Context, c *controllers.Controller) error {
	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()

	select {
	case ack := <-c.Endpoint().Acks:
		if !ack.OK() {
			return &protocol.InitialisationError{Component: c.Name(), Message: ack.Err.Error()}
		}
		s.log.Debug("controller ready", "component", c.Name())
		return nil
	case <-timer.C:
		return &protocol.InitialisationError{Component: c.Name(), Message: fmt.Sprintf("not ready after %v", ReadyTimeout)}
	case <-ctx.Done():
		return &protocol.InitialisationError{Component: c.Name(), Message: ctx.Err().Error()}
	}
}

// forwardEmergencyStop shuts down the MCU outputs when the latch trips
func (s *System) forwardEmergencyStop(ctx context.Context, m *mcu.MCU) {
	select {
	case <-s.EStop.Done():
		if err := m.EmergencyStop(); err != nil {
			s.log.Error("forwarding emergency stop to MCU", "error", err)
		}
	case <-ctx.Done():
	}
}

// Shutdown stops the moves in progress and closes every controller,
// waiting up to the configured shutdown timeout for each, then releases
// the hardware. It is safe to call more than once.
func (s *System) Shutdown() error {
	timeout := s.Config.ShutdownTimeout.Duration
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	for _, c := range s.controllers {
		c.Stop()
		select {
		case c.Endpoint().Commands <- protocol.Close():
		default:
			s.log.Warn("command queue full, cancelling instead", "component", c.Name())
		}
	}

	var errs []error
	for _, c := range s.controllers {
		select {
		case <-c.Done():
		case <-time.After(timeout):
			s.log.Error("controller did not close", "component", c.Name(), "timeout", timeout)
			errs = append(errs, fmt.Errorf("%s did not close within %v", c.Name(), timeout))
		}
	}
	s.cancel()
	s.controllers = nil

	if s.Platform != nil {
		if err := s.Platform.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing hardware: %w", err))
		}
		s.Platform = nil
	}
	return errors.Join(errs...)
}
