package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Chertan/CUB-Control-Software/controllers"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Dispatcher routes commands to the controllers and counts the acks each
// one still owes. It belongs to the supervisor goroutine; nothing else
// may call it.
type Dispatcher struct {
	order       []string
	endpoints   map[string]controllers.Endpoint
	outstanding map[string]int
	log         *slog.Logger
}

// NewDispatcher creates a dispatcher with no components
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		endpoints:   make(map[string]controllers.Endpoint),
		outstanding: make(map[string]int),
		log:         logs.Component(slog.Default(), "Dispatcher"),
	}
}

// Register adds a component. Components are awaited in registration
// order when a barrier names no targets.
func (d *Dispatcher) Register(name string, ep controllers.Endpoint) {
	if _, ok := d.endpoints[name]; !ok {
		d.order = append(d.order, name)
	}
	d.endpoints[name] = ep
}

// Components lists the registered components in order
func (d *Dispatcher) Components() []string {
	return append([]string(nil), d.order...)
}

func (d *Dispatcher) endpoint(target string) controllers.Endpoint {
	ep, ok := d.endpoints[target]
	if !ok {
		panic(fmt.Sprintf("dispatch to unknown component %q", target))
	}
	return ep
}

// Send queues cmd on the target's command channel and counts the ack it
// owes. Sending to an unregistered component panics.
func (d *Dispatcher) Send(target string, cmd protocol.Command) {
	ep := d.endpoint(target)
	d.log.Debug("send", "target", target, "command", cmd.String())
	ep.Commands <- cmd
	d.outstanding[target]++
}

// Outstanding returns the number of acks target still owes
func (d *Dispatcher) Outstanding(target string) int {
	return d.outstanding[target]
}

// Await drains, for each target, as many acks as it owed when Await was
// called. No targets means every component. The first failure ack stops
// the wait and is returned as an *protocol.OperationError; acks not yet
// drained stay outstanding for the next barrier.
func (d *Dispatcher) Await(ctx context.Context, targets ...string) error {
	if len(targets) == 0 {
		targets = d.order
	}

	snapshot := make(map[string]int, len(targets))
	var unique []string
	for _, target := range targets {
		d.endpoint(target)
		if _, seen := snapshot[target]; !seen {
			snapshot[target] = d.outstanding[target]
			unique = append(unique, target)
		}
	}

	for _, target := range unique {
		acks := d.endpoints[target].Acks
		for n := snapshot[target]; n > 0; n-- {
			select {
			case ack := <-acks:
				d.outstanding[target]--
				if !ack.OK() {
					err := ack.AsError()
					d.log.Error("barrier failed", "component", target, "error", err)
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
