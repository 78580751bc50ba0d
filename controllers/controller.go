// Package controllers implements the four CUB actuator controllers. Each
// controller owns its motors and sensors, runs in its own goroutine and
// talks to the supervisor only through its command and ack channels.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// QueueDepth is the capacity of the command and ack channels of a
// controller. The supervisor never has more commands in flight to one
// controller than this between two barriers.
const QueueDepth = 32

// State of a controller's run loop
type State int32

const (
	Idle State = iota
	Startup
	Operating
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Startup:
		return "STARTUP"
	case Operating:
		return "OPERATING"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Endpoint is the supervisor's side of a controller
type Endpoint struct {
	Commands chan<- protocol.Command
	Acks     <-chan protocol.Ack
}

// Controller is the run loop shared by every actuator controller. The
// concrete controllers register their operations and provide a self-test
// and a disable function.
type Controller struct {
	name  string
	ops   *core.OpRegistry
	estop *core.EmergencyStop
	log   *slog.Logger

	selfTest func(ctx context.Context) error
	disable  func() error
	halt     func() // stops the motor of the move in progress, may be nil

	commands chan protocol.Command
	acks     chan protocol.Ack

	state atomic.Int32
	done  chan struct{}
}

func newController(name string, estop *core.EmergencyStop, selfTest func(context.Context) error, disable func() error) *Controller {
	return &Controller{
		name:     name,
		ops:      core.NewOpRegistry(),
		estop:    estop,
		log:      logs.Component(slog.Default(), name),
		selfTest: selfTest,
		disable:  disable,
		commands: make(chan protocol.Command, QueueDepth),
		acks:     make(chan protocol.Ack, QueueDepth),
		done:     make(chan struct{}),
	}
}

// Name returns the component identifier
func (c *Controller) Name() string {
	return c.name
}

// State returns the current state of the run loop
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug("state", "state", s)
}

// Stop cuts short the move in progress. The command fails with
// core.ErrStopped; commands already queued still run.
func (c *Controller) Stop() {
	if c.halt != nil {
		c.log.Info("stopping move in progress")
		c.halt()
	}
}

// Endpoint returns the command and ack channels
func (c *Controller) Endpoint() Endpoint {
	return Endpoint{Commands: c.commands, Acks: c.acks}
}

// Done is closed once the controller has closed
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run performs the startup self-test, reports readiness with one ack and
// then executes commands until CLOSE, a closed command channel or ctx
// cancellation. A failed self-test returns an InitialisationError; a
// panic in an operation returns the panic as an error after tripping the
// emergency stop.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer close(c.done)
	defer c.shutdown()

	c.setState(Startup)
	c.log.Info("starting self-test")
	if err := c.startup(ctx); err != nil {
		c.log.Error("self-test failed", "error", err)
		c.reply(ctx, protocol.Failure(c.name, "STARTUP", err))
		return &protocol.InitialisationError{Component: c.name, Message: err.Error()}
	}
	c.reply(ctx, protocol.Success(c.name, "STARTUP"))
	c.log.Info("ready")

	c.setState(Operating)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("context cancelled")
			return nil

		case cmd, ok := <-c.commands:
			if !ok {
				c.log.Info("command channel closed")
				return nil
			}
			if cmd.Op == protocol.OpClose {
				c.log.Info("close requested")
				c.reply(ctx, protocol.Success(c.name, cmd.String()))
				return nil
			}

			ack, fatal := c.execute(ctx, cmd)
			c.reply(ctx, ack)
			if fatal != nil {
				return fatal
			}
		}
	}
}

// startup runs the self-test and turns a panic into a failure
func (c *Controller) startup(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during self-test: %v", r)
		}
	}()
	return c.selfTest(ctx)
}

// execute runs one command through the op registry. The second result
// is set when the controller must close.
func (c *Controller) execute(ctx context.Context, cmd protocol.Command) (ack protocol.Ack, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("panic in %s: %v", cmd, r)
			c.log.Error("operation panicked", "command", cmd.String(), "panic", r)
			c.estop.Trip(c.name, fatal.Error())
			ack = protocol.Failure(c.name, cmd.String(), fatal)
		}
	}()

	if c.estop.IsSet() {
		c.log.Warn("command rejected by emergency stop", "command", cmd.String())
		return protocol.Failure(c.name, cmd.String(), core.ErrEmergencyStop), nil
	}

	c.log.Debug("executing", "command", cmd.String())
	if err := c.ops.Dispatch(ctx, c.name, cmd); err != nil {
		var commErr *protocol.CommunicationError
		if errors.As(err, &commErr) {
			c.log.Error("communication error", "command", cmd.String(), "input", commErr.Input, "message", commErr.Message)
		} else {
			c.log.Warn("operation failed", "command", cmd.String(), "error", err)
		}
		return protocol.Failure(c.name, cmd.String(), err), nil
	}
	return protocol.Success(c.name, cmd.String()), nil
}

// reply writes an ack unless ctx is cancelled while the ack queue is full
func (c *Controller) reply(ctx context.Context, ack protocol.Ack) {
	select {
	case c.acks <- ack:
	case <-ctx.Done():
		c.log.Warn("ack dropped", "ack", ack.String())
	}
}

func (c *Controller) shutdown() {
	c.setState(Closing)
	if err := c.disable(); err != nil {
		c.log.Error("disabling outputs", "error", err)
	}
	c.setState(Closed)
	c.log.Info("closed")
}

// commErr builds the CommunicationError of a malformed command field
func (c *Controller) commErr(input, message string) error {
	return &protocol.CommunicationError{Component: c.name, Input: input, Message: message}
}

// opErr builds the OperationError of a command that did not complete
func (c *Controller) opErr(cmd protocol.Command, message string, err error) error {
	return &protocol.OperationError{Component: c.name, Operation: cmd.String(), Message: message, Err: err}
}
