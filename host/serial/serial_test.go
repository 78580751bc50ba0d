package serial

import (
	"net"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Baud != 250000 {
		t.Errorf("Expected baud 250000, got %d", cfg.Baud)
	}
	if cfg.ReadTimeout != 100 {
		t.Errorf("Expected read timeout 100, got %d", cfg.ReadTimeout)
	}

	kb := KeyboardConfig("/dev/ttyUSB0")
	if kb.ReadTimeout != 0 {
		t.Errorf("Expected blocking keyboard reads, got timeout %d", kb.ReadTimeout)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := Open(&Config{}); err == nil {
		t.Error("Expected error for empty device")
	}
}

func TestWrap(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	p := Wrap(a)
	if err := p.Flush(); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if Wrap(p) != p {
		t.Error("Expected Wrap to return an existing Port unchanged")
	}

	go func() {
		p.Write([]byte("MOVE COL POS\n"))
	}()
	buf := make([]byte, 32)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "MOVE COL POS\n" {
		t.Errorf("Expected passthrough, got %q", buf[:n])
	}
	p.Close()
}
