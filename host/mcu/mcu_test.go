package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/host/serial"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

var testCommands = map[string]int{
	"identify offset=%u count=%c":                      1,
	"config_i2c oid=%c":                                2,
	"i2c_set_bus oid=%c i2c_bus=%u rate=%u address=%u": 3,
	"i2c_write oid=%c data=%*s":                        4,
	"i2c_read oid=%c reg=%*s read_len=%u":              5,
	"emergency_stop":                                   6,
}

var testResponses = map[string]int{
	"identify_response offset=%u data=%*s":  0,
	"i2c_read_response oid=%c response=%*s": 7,
}

// fakeMCU serves a compressed dictionary and an MCP23017 register file
// behind a bridged I2C bus
type fakeMCU struct {
	mu      sync.Mutex
	dict    []byte
	regs    [0x16]byte
	address uint32
	estop   bool
}

func newFakeMCU(t *testing.T) *fakeMCU {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"version":   "cub-bridge-test",
		"commands":  testCommands,
		"responses": testResponses,
		"config":    map[string]any{"CLOCK_FREQ": 12000000},
	})
	if err != nil {
		t.Fatalf("marshal dictionary: %v", err)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	f := &fakeMCU{dict: buf.Bytes()}
	// power-on state: every expander pin an input
	f.regs[0x00] = 0xff
	f.regs[0x01] = 0xff
	return f
}

func (f *fakeMCU) serve(conn net.Conn) {
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		for {
			frame, used, err := protocol.DecodeFrame(pending)
			if err != nil {
				break
			}
			pending = pending[used:]

			ack, _ := protocol.EncodeFrame(protocol.NextSequence(frame.Sequence), nil)
			if _, err := conn.Write(ack); err != nil {
				return
			}
			if resp := f.handle(frame.Payload); resp != nil {
				block, _ := protocol.EncodeFrame(0, resp)
				if _, err := conn.Write(block); err != nil {
					return
				}
			}
		}
	}
}

func (f *fakeMCU) handle(payload []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := protocol.NewScratchOutput()
	cmdID, _ := protocol.DecodeVLQUint(&payload)
	switch cmdID {
	case 1:
		offset, _ := protocol.DecodeVLQUint(&payload)
		count, _ := protocol.DecodeVLQUint(&payload)
		end := min(int(offset+count), len(f.dict))
		start := min(int(offset), end)
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, f.dict[start:end])
		return out.Result()
	case 3:
		protocol.DecodeVLQUint(&payload)
		protocol.DecodeVLQUint(&payload)
		protocol.DecodeVLQUint(&payload)
		f.address, _ = protocol.DecodeVLQUint(&payload)
	case 4:
		protocol.DecodeVLQUint(&payload)
		data, _ := protocol.DecodeVLQBytes(&payload)
		for i, b := range data[1:] {
			f.regs[int(data[0])+i] = b
		}
	case 5:
		oid, _ := protocol.DecodeVLQUint(&payload)
		reg, _ := protocol.DecodeVLQBytes(&payload)
		n, _ := protocol.DecodeVLQUint(&payload)
		protocol.EncodeVLQUint(out, 7)
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQBytes(out, f.regs[reg[0]:int(reg[0])+int(n)])
		return out.Result()
	case 6:
		f.estop = true
	}
	return nil
}

func connectFake(t *testing.T) (*MCU, *fakeMCU) {
	t.Helper()
	host, dev := net.Pipe()
	f := newFakeMCU(t)
	go f.serve(dev)
	t.Cleanup(func() { dev.Close() })

	m := NewMCU()
	m.ConnectPort(serial.Wrap(host))
	t.Cleanup(func() { m.Close() })

	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary failed: %v", err)
	}
	return m, f
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := connectFake(t)

	dict := m.GetDictionary()
	if dict.Version != "cub-bridge-test" {
		t.Errorf("Expected version cub-bridge-test, got %s", dict.Version)
	}
	if id, ok := dict.CommandID("i2c_read"); !ok || id != 5 {
		t.Errorf("Expected i2c_read id 5, got %d (%v)", id, ok)
	}
	if id, ok := dict.ResponseID("i2c_read_response"); !ok || id != 7 {
		t.Errorf("Expected i2c_read_response id 7, got %d (%v)", id, ok)
	}
	if _, ok := dict.CommandID("i2c_read oid=%c reg=%*s read_len=%u"); ok {
		t.Error("Expected lookup by name only")
	}

	var out bytes.Buffer
	m.PrintDictionary(&out)
	if !bytes.Contains(out.Bytes(), []byte("[4] i2c_write oid=%c data=%*s")) {
		t.Errorf("Expected i2c_write in summary, got:\n%s", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	m, _ := connectFake(t)
	if err := m.SendCommand("spi_send", nil); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestEmergencyStopCommand(t *testing.T) {
	m, f := connectFake(t)
	if err := m.EmergencyStop(); err != nil {
		t.Fatalf("EmergencyStop failed: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.estop {
		t.Error("Expected MCU to receive emergency_stop")
	}
}

func TestBridgedExpander(t *testing.T) {
	m, f := connectFake(t)

	bus, err := m.OpenI2C(I2CConfig{OID: 0, Bus: 1, Rate: 400000, Address: 0x20})
	if err != nil {
		t.Fatalf("OpenI2C failed: %v", err)
	}
	if err := bus.Tx(0x21, []byte{0x12}, make([]byte, 2)); err == nil {
		t.Error("Expected error for wrong device address")
	}

	gpio, err := core.NewExpanderGPIO(bus, 0x20)
	if err != nil {
		t.Fatalf("NewExpanderGPIO failed: %v", err)
	}
	if err := gpio.ConfigureOutput(2); err != nil {
		t.Fatalf("ConfigureOutput failed: %v", err)
	}
	if err := gpio.SetPin(2, true); err != nil {
		t.Fatalf("SetPin failed: %v", err)
	}

	f.mu.Lock()
	gpioA, address := f.regs[0x12], f.address
	f.mu.Unlock()
	if address != 0x20 {
		t.Errorf("Expected bus bound to 0x20, got 0x%02x", address)
	}
	if gpioA&(1<<2) == 0 {
		t.Errorf("Expected GPIOA bit 2 set, got 0b%08b", gpioA)
	}

	f.mu.Lock()
	f.regs[0x13] = 1 << 4
	f.mu.Unlock()
	if err := gpio.ConfigureInputPullUp(12); err != nil {
		t.Fatalf("ConfigureInputPullUp failed: %v", err)
	}
	v, err := gpio.GetPin(12)
	if err != nil {
		t.Fatalf("GetPin failed: %v", err)
	}
	if !v {
		t.Error("Expected pin 12 high through the bridge")
	}
}
