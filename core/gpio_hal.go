package core

import (
	"errors"
	"fmt"
)

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// ErrHardwareFault marks a failure of the hardware access layer itself
// (a pin that cannot be written or read). It is not recoverable by
// retrying the operation.
var ErrHardwareFault = errors.New("hardware fault")

// GPIODriver is the abstract GPIO interface the actuators use.
// Implementations: SimGPIO (simulation and tests), RPiGPIO (the
// Raspberry Pi header) and ExpanderGPIO (an MCP23017 port expander).
//
// One driver is created per process and injected into every actuator.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// Close releases the hardware
	Close() error
}

// pinFault wraps a driver error with the pin and ErrHardwareFault
func pinFault(op string, pin GPIOPin, err error) error {
	return fmt.Errorf("%s pin %d: %w: %w", op, pin, ErrHardwareFault, err)
}
