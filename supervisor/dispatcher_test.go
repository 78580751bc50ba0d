package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/Chertan/CUB-Control-Software/controllers"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// manual is an endpoint whose acks are pushed by the test
type manual struct {
	commands chan protocol.Command
	acks     chan protocol.Ack
}

func newManual() *manual {
	return &manual{
		commands: make(chan protocol.Command, 16),
		acks:     make(chan protocol.Ack, 16),
	}
}

func (m *manual) endpoint() controllers.Endpoint {
	return controllers.Endpoint{Commands: m.commands, Acks: m.acks}
}

func TestDispatcherCounts(t *testing.T) {
	a, b := newManual(), newManual()
	d := NewDispatcher()
	d.Register("A", a.endpoint())
	d.Register("B", b.endpoint())

	if got := d.Components(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Expected [A B], got %v", got)
	}

	d.Send("A", protocol.Home())
	d.Send("A", protocol.Emboss())
	d.Send("B", protocol.Home())
	if d.Outstanding("A") != 2 || d.Outstanding("B") != 1 {
		t.Fatalf("Expected 2 and 1 outstanding, got %d and %d", d.Outstanding("A"), d.Outstanding("B"))
	}
	if len(a.commands) != 2 {
		t.Errorf("Expected 2 queued commands for A, got %d", len(a.commands))
	}

	a.acks <- protocol.Success("A", "HOME")
	a.acks <- protocol.Success("A", "EMBOSS")
	if err := d.Await(context.Background(), "A", "A"); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if d.Outstanding("A") != 0 || d.Outstanding("B") != 1 {
		t.Errorf("Expected 0 and 1 outstanding, got %d and %d", d.Outstanding("A"), d.Outstanding("B"))
	}

	b.acks <- protocol.Success("B", "HOME")
	if err := d.Await(context.Background()); err != nil {
		t.Fatalf("Await all failed: %v", err)
	}
	if d.Outstanding("B") != 0 {
		t.Errorf("Expected 0 outstanding for B, got %d", d.Outstanding("B"))
	}
}

func TestDispatcherAwaitUsesSnapshot(t *testing.T) {
	a := newManual()
	d := NewDispatcher()
	d.Register("A", a.endpoint())

	d.Send("A", protocol.Home())
	d.Send("A", protocol.Home())
	// one ack more than is owed
	for i := 0; i < 3; i++ {
		a.acks <- protocol.Success("A", "HOME")
	}

	if err := d.Await(context.Background(), "A"); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(a.acks) != 1 {
		t.Errorf("Expected 1 ack left undrained, got %d", len(a.acks))
	}

	d.Send("A", protocol.Home())
	if err := d.Await(context.Background(), "A"); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(a.acks) != 0 || d.Outstanding("A") != 0 {
		t.Errorf("Expected everything drained, got %d acks and %d outstanding", len(a.acks), d.Outstanding("A"))
	}
}

func TestDispatcherAwaitFailure(t *testing.T) {
	a, b := newManual(), newManual()
	d := NewDispatcher()
	d.Register("A", a.endpoint())
	d.Register("B", b.endpoint())

	d.Send("A", protocol.Emboss())
	d.Send("A", protocol.Emboss())
	d.Send("B", protocol.Home())
	a.acks <- protocol.Failure("A", "EMBOSS", errors.New("jammed"))

	err := d.Await(context.Background(), "A", "B")
	var opErr *protocol.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected OperationError, got %v", err)
	}
	if opErr.Component != "A" || opErr.Message != "jammed" {
		t.Errorf("Expected A/jammed, got %s/%s", opErr.Component, opErr.Message)
	}
	if d.Outstanding("A") != 1 || d.Outstanding("B") != 1 {
		t.Errorf("Expected 1 and 1 outstanding, got %d and %d", d.Outstanding("A"), d.Outstanding("B"))
	}
}

func TestDispatcherAwaitCancelled(t *testing.T) {
	a := newManual()
	d := NewDispatcher()
	d.Register("A", a.endpoint())
	d.Send("A", protocol.Home())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Await(ctx, "A"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if d.Outstanding("A") != 1 {
		t.Errorf("Expected ack still owed, got %d", d.Outstanding("A"))
	}
}

func TestDispatcherUnknownTarget(t *testing.T) {
	d := NewDispatcher()
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unknown component")
		}
	}()
	d.Send("Nobody", protocol.Home())
}
