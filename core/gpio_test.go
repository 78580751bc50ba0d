package core

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers/tester"
)

func TestSimGPIOOutput(t *testing.T) {
	gpio := NewSimGPIO()
	pin := GPIOPin(20)

	if err := gpio.SetPin(pin, true); err == nil {
		t.Error("Expected write to unconfigured pin to fail")
	}

	if err := gpio.ConfigureOutput(pin); err != nil {
		t.Fatalf("ConfigureOutput failed: %v", err)
	}

	var changes []bool
	gpio.OnChange(pin, func(v bool) { changes = append(changes, v) })

	for _, v := range []bool{true, false, false, true, false} {
		if err := gpio.SetPin(pin, v); err != nil {
			t.Fatalf("SetPin failed: %v", err)
		}
	}

	if n := gpio.RisingEdges(pin); n != 2 {
		t.Errorf("Expected 2 rising edges, got %d", n)
	}
	if len(changes) != 4 {
		t.Errorf("Expected 4 change notifications, got %d", len(changes))
	}
	if gpio.Level(pin) {
		t.Error("Expected pin low")
	}
}

func TestSimGPIOInputs(t *testing.T) {
	gpio := NewSimGPIO()

	if err := gpio.ConfigureInputPullUp(4); err != nil {
		t.Fatalf("ConfigureInputPullUp failed: %v", err)
	}
	if v, _ := gpio.GetPin(4); !v {
		t.Error("Expected pulled-up input to idle high")
	}

	gpio.SetInput(4, false)
	if v, _ := gpio.GetPin(4); v {
		t.Error("Expected input low after SetInput")
	}

	level := true
	gpio.DriveInput(4, func() bool { return level })
	if v, _ := gpio.GetPin(4); !v {
		t.Error("Expected driven input high")
	}
	level = false
	if v, _ := gpio.GetPin(4); v {
		t.Error("Expected driven input to follow its source")
	}
}

func TestSimGPIOFault(t *testing.T) {
	gpio := NewSimGPIO()
	gpio.ConfigureOutput(5)
	gpio.InjectFault(5, errors.New("bus error"))

	err := gpio.SetPin(5, true)
	if !errors.Is(err, ErrHardwareFault) {
		t.Errorf("Expected hardware fault, got %v", err)
	}

	gpio.InjectFault(5, nil)
	if err := gpio.SetPin(5, true); err != nil {
		t.Errorf("Expected fault cleared, got %v", err)
	}
}

func newTestExpander(t *testing.T) (*ExpanderGPIO, *tester.I2CDevice8) {
	t.Helper()
	bus := tester.NewI2CBus(t)
	dev := bus.NewDevice(0x20)
	// power-on state: every pin an input
	dev.Registers[0x00] = 0xff
	dev.Registers[0x01] = 0xff

	e, err := NewExpanderGPIO(bus, 0x20)
	if err != nil {
		t.Fatalf("NewExpanderGPIO failed: %v", err)
	}
	return e, dev
}

func TestExpanderGPIO(t *testing.T) {
	e, dev := newTestExpander(t)

	if err := e.ConfigureOutput(3); err != nil {
		t.Fatalf("ConfigureOutput failed: %v", err)
	}
	if dev.Registers[0x00]&(1<<3) != 0 {
		t.Error("Expected IODIRA bit 3 cleared for output")
	}

	if err := e.SetPin(3, true); err != nil {
		t.Fatalf("SetPin failed: %v", err)
	}
	if dev.Registers[0x12]&(1<<3) == 0 {
		t.Error("Expected GPIOA bit 3 set")
	}

	if err := e.ConfigureInputPullUp(9); err != nil {
		t.Fatalf("ConfigureInputPullUp failed: %v", err)
	}
	dev.Registers[0x13] = 1 << 1
	v, err := e.GetPin(9)
	if err != nil {
		t.Fatalf("GetPin failed: %v", err)
	}
	if !v {
		t.Error("Expected pin 9 high")
	}

	if _, err := e.GetPin(16); err == nil {
		t.Error("Expected out of range pin to fail")
	}
}
