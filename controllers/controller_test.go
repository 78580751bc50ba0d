package controllers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
	"github.com/Chertan/CUB-Control-Software/sim"
)

type rig struct {
	gpio  *core.SimGPIO
	plant *sim.Plant
	cfg   config.HardwareConfig
	hw    Hardware
}

func newRig(t *testing.T, paper string) *rig {
	t.Helper()
	gpio := core.NewSimGPIO()
	cfg := config.Default().Hardware
	return &rig{
		gpio:  gpio,
		plant: sim.New(gpio, cfg, paper),
		cfg:   cfg,
		hw: Hardware{
			GPIO:  gpio,
			EStop: core.NewEmergencyStop(),
			Clock: core.NewVirtualClock(),
		},
	}
}

// start runs c and waits for its readiness ack
func start(t *testing.T, c *Controller) Endpoint {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})

	ep := c.Endpoint()
	if ack := awaitAck(t, ep); !ack.OK() {
		t.Fatalf("Expected readiness ack, got %v", ack)
	}
	return ep
}

func awaitAck(t *testing.T, ep Endpoint) protocol.Ack {
	t.Helper()
	select {
	case ack := <-ep.Acks:
		return ack
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for ack")
		return protocol.Ack{}
	}
}

func send(t *testing.T, ep Endpoint, cmd protocol.Command) protocol.Ack {
	t.Helper()
	ep.Commands <- cmd
	return awaitAck(t, ep)
}

func TestControllerLifecycle(t *testing.T) {
	r := newRig(t, config.PaperA4)
	trav, err := NewTraverser(r.hw, r.cfg.Traverser)
	if err != nil {
		t.Fatalf("NewTraverser failed: %v", err)
	}
	if trav.State() != Idle {
		t.Errorf("Expected IDLE before run, got %v", trav.State())
	}

	ep := start(t, trav.Controller)
	if trav.State() != Operating {
		t.Errorf("Expected OPERATING, got %v", trav.State())
	}

	if ack := send(t, ep, protocol.MoveCol(protocol.Pos, 1)); !ack.OK() {
		t.Fatalf("Expected ACK, got %v", ack)
	}
	if r.plant.HeadSteps() != r.cfg.Traverser.ColSteps {
		t.Errorf("Expected head at %d, got %d", r.cfg.Traverser.ColSteps, r.plant.HeadSteps())
	}

	if ack := send(t, ep, protocol.Close()); !ack.OK() {
		t.Fatalf("Expected ACK for CLOSE, got %v", ack)
	}
	<-trav.Done()
	if trav.State() != Closed {
		t.Errorf("Expected CLOSED, got %v", trav.State())
	}
	if r.gpio.Level(core.GPIOPin(r.cfg.Traverser.Motor.Enable)) {
		t.Error("Expected stepper disabled after close")
	}
}

func TestControllerUnsupportedOperation(t *testing.T) {
	r := newRig(t, config.PaperA4)
	trav, _ := NewTraverser(r.hw, r.cfg.Traverser)
	ep := start(t, trav.Controller)

	ack := send(t, ep, protocol.Emboss())
	if ack.OK() {
		t.Fatal("Expected failure ack for EMBOSS on the traverser")
	}
	var commErr *protocol.CommunicationError
	if !errors.As(ack.Err, &commErr) {
		t.Fatalf("Expected CommunicationError, got %v", ack.Err)
	}
	if !strings.HasPrefix(ack.String(), "Traverser ERROR:") {
		t.Errorf("Expected failure text prefixed by the component, got %q", ack.String())
	}

	// a malformed command does not stop the controller
	if ack := send(t, ep, protocol.Home()); !ack.OK() {
		t.Errorf("Expected ACK after a failed command, got %v", ack)
	}
}

func TestControllerSelfTestFailure(t *testing.T) {
	estop := core.NewEmergencyStop()
	c := newController("Test", estop, func(context.Context) error {
		return errors.New("sensor not found")
	}, func() error { return nil })

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()

	ack := awaitAck(t, c.Endpoint())
	if ack.OK() {
		t.Fatal("Expected failure readiness ack")
	}
	err := <-errc
	var initErr *protocol.InitialisationError
	if !errors.As(err, &initErr) || initErr.Component != "Test" {
		t.Errorf("Expected InitialisationError from Test, got %v", err)
	}
	if c.State() != Closed {
		t.Errorf("Expected CLOSED, got %v", c.State())
	}
}

func TestControllerPanicTripsEmergencyStop(t *testing.T) {
	estop := core.NewEmergencyStop()
	disabled := false
	c := newController("Test", estop, func(context.Context) error { return nil }, func() error {
		disabled = true
		return nil
	})
	c.ops.Register(protocol.OpHome, "home", func(context.Context, protocol.Command) error {
		panic("boom")
	})

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()
	ep := c.Endpoint()
	awaitAck(t, ep)

	ack := send(t, ep, protocol.Home())
	if ack.OK() {
		t.Fatal("Expected failure ack from panicking handler")
	}
	if err := <-errc; err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected panic error, got %v", err)
	}
	if !estop.IsSet() {
		t.Error("Expected emergency stop tripped")
	}
	if !disabled {
		t.Error("Expected outputs disabled")
	}
}

func TestControllerContextCancel(t *testing.T) {
	estop := core.NewEmergencyStop()
	c := newController("Test", estop, func(context.Context) error { return nil }, func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	awaitAck(t, c.Endpoint())

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Expected clean exit on cancel, got %v", err)
	}
}

func TestEmergencyStopAllControllers(t *testing.T) {
	r := newRig(t, config.PaperA4)
	trav, _ := NewTraverser(r.hw, r.cfg.Traverser)
	sel, _ := NewSelector(r.hw, r.cfg.Selector)
	emb, _ := NewEmbosser(r.hw, r.cfg.Embosser)
	tep := start(t, trav.Controller)
	sep := start(t, sel.Controller)
	eep := start(t, emb.Controller)

	head, tool, strikes := r.plant.HeadSteps(), r.plant.ToolSteps(), len(r.plant.Strikes())
	step := core.GPIOPin(r.cfg.Traverser.Motor.Step)
	edges := r.gpio.RisingEdges(step)

	r.hw.EStop.Trip(NameSelector, "test")

	for _, c := range []struct {
		ep  Endpoint
		cmd protocol.Command
	}{
		{tep, protocol.MoveChar(protocol.Pos, 1)},
		{sep, protocol.SelectTool("110")},
		{eep, protocol.Emboss()},
	} {
		ack := send(t, c.ep, c.cmd)
		if ack.OK() || !errors.Is(ack.Err, core.ErrEmergencyStop) {
			t.Errorf("Expected %v rejected by emergency stop, got %v", c.cmd, ack)
		}
	}

	// the motion primitives refuse on their own as well
	if n, err := trav.stepper.MoveSteps(context.Background(), 10, protocol.Pos); n != 0 || !errors.Is(err, core.ErrEmergencyStop) {
		t.Errorf("Expected MoveSteps to return 0 and ErrEmergencyStop, got %d, %v", n, err)
	}
	if err := emb.coil.Pulse(context.Background(), true, time.Millisecond); !errors.Is(err, core.ErrEmergencyStop) {
		t.Errorf("Expected Pulse to return ErrEmergencyStop, got %v", err)
	}

	if r.plant.HeadSteps() != head || r.plant.ToolSteps() != tool || len(r.plant.Strikes()) != strikes {
		t.Error("Expected no physical effect after emergency stop")
	}
	if r.gpio.RisingEdges(step) != edges {
		t.Error("Expected no step pulses after emergency stop")
	}
}
