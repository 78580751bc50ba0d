//go:build linux

package core

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPiGPIO drives the Raspberry Pi header through /dev/gpiomem.
// Pin numbers are BCM numbers.
type RPiGPIO struct {
	mu sync.Mutex
}

// OpenRPiGPIO maps the GPIO registers. Only one RPiGPIO may be open.
func OpenRPiGPIO() (*RPiGPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w: %w", ErrHardwareFault, err)
	}
	return &RPiGPIO{}, nil
}

func (r *RPiGPIO) ConfigureOutput(pin GPIOPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return nil
}

func (r *RPiGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()
	return nil
}

func (r *RPiGPIO) ConfigureInputPullDown(pin GPIOPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Input()
	p.PullDown()
	return nil
}

func (r *RPiGPIO) SetPin(pin GPIOPin, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (r *RPiGPIO) GetPin(pin GPIOPin) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rpio.Pin(pin).Read() == rpio.High, nil
}

// Close unmaps the registers
func (r *RPiGPIO) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rpio.Close()
}
