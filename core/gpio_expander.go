package core

import (
	"fmt"
	"io"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mcp23017"
)

// ExpanderGPIO drives the CUB pins through an MCP23017 port expander.
// The I2C bus may be local or bridged through an MCU (see host/mcu).
// Pins 0-7 are port A, 8-15 port B.
type ExpanderGPIO struct {
	mu  sync.Mutex
	dev *mcp23017.Device

	// released on Close, may be nil
	bus io.Closer
}

// NewExpanderGPIO probes the expander at address (0x20-0x27) on bus.
// If bus also implements io.Closer it is closed with the driver.
func NewExpanderGPIO(bus drivers.I2C, address uint8) (*ExpanderGPIO, error) {
	dev, err := mcp23017.NewI2C(bus, address)
	if err != nil {
		return nil, fmt.Errorf("port expander 0x%02x: %w: %w", address, ErrHardwareFault, err)
	}

	e := &ExpanderGPIO{dev: dev}
	if c, ok := bus.(io.Closer); ok {
		e.bus = c
	}
	return e, nil
}

func (e *ExpanderGPIO) pin(p GPIOPin) (mcp23017.Pin, error) {
	if p >= mcp23017.PinCount {
		return mcp23017.Pin{}, fmt.Errorf("expander pin %d out of range", p)
	}
	return e.dev.Pin(int(p)), nil
}

func (e *ExpanderGPIO) setMode(p GPIOPin, mode mcp23017.PinMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pin, err := e.pin(p)
	if err != nil {
		return err
	}
	if err := pin.SetMode(mode); err != nil {
		return pinFault("configure", p, err)
	}
	return nil
}

func (e *ExpanderGPIO) ConfigureOutput(p GPIOPin) error {
	if err := e.setMode(p, mcp23017.Output); err != nil {
		return err
	}
	return e.SetPin(p, false)
}

func (e *ExpanderGPIO) ConfigureInputPullUp(p GPIOPin) error {
	return e.setMode(p, mcp23017.Input|mcp23017.Pullup)
}

// ConfigureInputPullDown configures a plain input. The MCP23017 has no
// internal pull-downs; the board provides them.
func (e *ExpanderGPIO) ConfigureInputPullDown(p GPIOPin) error {
	return e.setMode(p, mcp23017.Input)
}

func (e *ExpanderGPIO) SetPin(p GPIOPin, value bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pin, err := e.pin(p)
	if err != nil {
		return err
	}
	if err := pin.Set(value); err != nil {
		return pinFault("write", p, err)
	}
	return nil
}

func (e *ExpanderGPIO) GetPin(p GPIOPin) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pin, err := e.pin(p)
	if err != nil {
		return false, err
	}
	v, err := pin.Get()
	if err != nil {
		return false, pinFault("read", p, err)
	}
	return v, nil
}

// Close drives every output low and releases the bus
func (e *ExpanderGPIO) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.dev.SetPins(0, ^mcp23017.Pins(0))
	if e.bus != nil {
		if cerr := e.bus.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
