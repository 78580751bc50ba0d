package serial

import (
	"io"
)

// Port represents a serial port interface.
// Implementations:
// - Native serial (using github.com/tarm/serial)
// - net.Pipe or any io.ReadWriteCloser wrapped with Wrap (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "/dev/ttyUSB0")
	Device string

	// Baud rate
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration of the MCU bridge link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000, // Klipper protocol rate, ignored by USB CDC
		ReadTimeout: 100,
	}
}

// KeyboardConfig returns the configuration of the Braille keyboard link
func KeyboardConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        9600,
		ReadTimeout: 0,
	}
}

type wrapped struct {
	io.ReadWriteCloser
}

func (wrapped) Flush() error { return nil }

// Wrap adapts a plain stream to Port
func Wrap(rw io.ReadWriteCloser) Port {
	if p, ok := rw.(Port); ok {
		return p
	}
	return wrapped{rw}
}
