package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

// OpHandler carries out one command for a controller
type OpHandler func(ctx context.Context, cmd protocol.Command) error

// Operation is a registered handler with a readable name for logs
type Operation struct {
	Op      protocol.Op
	Name    string
	Handler OpHandler
}

// OpRegistry maps the operation key of a command to its handler. Each
// controller owns one registry.
type OpRegistry struct {
	mu  sync.RWMutex
	ops map[protocol.Op]*Operation
}

// NewOpRegistry creates an empty registry
func NewOpRegistry() *OpRegistry {
	return &OpRegistry{ops: make(map[protocol.Op]*Operation)}
}

// Register adds a handler. Registering the same key twice replaces the
// earlier handler.
func (r *OpRegistry) Register(op protocol.Op, name string, handler OpHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op] = &Operation{Op: op, Name: name, Handler: handler}
}

// Lookup returns the operation registered for op
func (r *OpRegistry) Lookup(op protocol.Op) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.ops[op]
	return o, ok
}

// Ops lists the registered keys
func (r *OpRegistry) Ops() []protocol.Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]protocol.Op, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	return ops
}

// Dispatch runs the handler for cmd. An unregistered key is a
// CommunicationError naming component.
func (r *OpRegistry) Dispatch(ctx context.Context, component string, cmd protocol.Command) error {
	o, ok := r.Lookup(cmd.Op)
	if !ok {
		return &protocol.CommunicationError{
			Component: component,
			Input:     cmd.String(),
			Message:   fmt.Sprintf("unsupported operation %s", cmd.Op),
		}
	}
	return o.Handler(ctx, cmd)
}
