//go:build !linux

package core

import "fmt"

// RPiGPIO is only available on Linux
type RPiGPIO struct{ GPIODriver }

// OpenRPiGPIO always fails off Linux
func OpenRPiGPIO() (*RPiGPIO, error) {
	return nil, fmt.Errorf("raspberry pi gpio requires linux: %w", ErrHardwareFault)
}
