package core

import (
	"errors"
	"fmt"
	"sync"
)

type pinMode uint8

const (
	modeUnset pinMode = iota
	modeOutput
	modeInputPullUp
	modeInputPullDown
)

type simPin struct {
	mode     pinMode
	value    bool
	rising   int
	source   func() bool
	onChange func(bool)
	fault    error
}

// SimGPIO is an in-memory GPIODriver. Inputs can be driven by a function
// so a simulated plant can derive sensor levels from motor positions, and
// outputs can notify the plant on every change.
type SimGPIO struct {
	mu     sync.Mutex
	pins   map[GPIOPin]*simPin
	closed bool
}

// NewSimGPIO creates a driver with no configured pins
func NewSimGPIO() *SimGPIO {
	return &SimGPIO{pins: make(map[GPIOPin]*simPin)}
}

// pin returns the pin record, creating it on first use. Must be called
// with the lock held.
func (s *SimGPIO) pin(p GPIOPin) *simPin {
	sp, ok := s.pins[p]
	if !ok {
		sp = &simPin{}
		s.pins[p] = sp
	}
	return sp
}

func (s *SimGPIO) configure(p GPIOPin, mode pinMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sim gpio closed")
	}
	sp := s.pin(p)
	if sp.fault != nil {
		return sp.fault
	}
	sp.mode = mode
	// pull resistors give the idle level of an undriven input
	switch mode {
	case modeInputPullUp:
		sp.value = true
	case modeInputPullDown:
		sp.value = false
	}
	return nil
}

func (s *SimGPIO) ConfigureOutput(p GPIOPin) error {
	return s.configure(p, modeOutput)
}

func (s *SimGPIO) ConfigureInputPullUp(p GPIOPin) error {
	return s.configure(p, modeInputPullUp)
}

func (s *SimGPIO) ConfigureInputPullDown(p GPIOPin) error {
	return s.configure(p, modeInputPullDown)
}

// SetPin drives an output pin and notifies its change hook
func (s *SimGPIO) SetPin(p GPIOPin, value bool) error {
	s.mu.Lock()
	sp := s.pin(p)
	if sp.fault != nil {
		s.mu.Unlock()
		return sp.fault
	}
	if sp.mode != modeOutput {
		s.mu.Unlock()
		return fmt.Errorf("pin %d is not an output", p)
	}
	changed := sp.value != value
	if changed && value {
		sp.rising++
	}
	sp.value = value
	hook := sp.onChange
	s.mu.Unlock()

	if changed && hook != nil {
		hook(value)
	}
	return nil
}

// GetPin reads a pin. Driven inputs report their source function.
func (s *SimGPIO) GetPin(p GPIOPin) (bool, error) {
	s.mu.Lock()
	sp := s.pin(p)
	if sp.fault != nil {
		s.mu.Unlock()
		return false, sp.fault
	}
	src, value := sp.source, sp.value
	s.mu.Unlock()

	if src != nil {
		return src(), nil
	}
	return value, nil
}

// Close marks the driver closed; later configuration fails
func (s *SimGPIO) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetInput fixes the level of an input pin
func (s *SimGPIO) SetInput(p GPIOPin, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.pin(p)
	sp.source = nil
	sp.value = value
}

// DriveInput makes every read of p call source
func (s *SimGPIO) DriveInput(p GPIOPin, source func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pin(p).source = source
}

// OnChange registers a hook called after an output pin changes level
func (s *SimGPIO) OnChange(p GPIOPin, hook func(value bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pin(p).onChange = hook
}

// Level returns the last level written to or set on p
func (s *SimGPIO) Level(p GPIOPin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin(p).value
}

// RisingEdges counts low-to-high transitions written to p
func (s *SimGPIO) RisingEdges(p GPIOPin) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin(p).rising
}

// InjectFault makes every access to p fail with a hardware fault.
// A nil err clears the fault.
func (s *SimGPIO) InjectFault(p GPIOPin, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		err = pinFault("access", p, err)
	}
	s.pin(p).fault = err
}
