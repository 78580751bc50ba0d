package mcu

import (
	"fmt"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

// I2CBus is an I2C bus hosted by the MCU. It implements drivers.I2C so
// tinygo device drivers (the MCP23017 expander) run on the host over the
// bridge.
type I2CBus struct {
	mcu     *MCU
	oid     uint8
	address uint16
}

// I2CConfig selects the MCU bus and the single device addressed through it
type I2CConfig struct {
	OID     uint8
	Bus     uint32
	Rate    uint32
	Address uint8
}

// OpenI2C allocates an I2C object on the MCU and binds it to a bus and
// device address
func (m *MCU) OpenI2C(cfg I2CConfig) (*I2CBus, error) {
	err := m.SendCommand("config_i2c", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(cfg.OID))
	})
	if err != nil {
		return nil, fmt.Errorf("config_i2c: %w", err)
	}

	err = m.SendCommand("i2c_set_bus", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(cfg.OID))
		protocol.EncodeVLQUint(out, cfg.Bus)
		protocol.EncodeVLQUint(out, cfg.Rate)
		protocol.EncodeVLQUint(out, uint32(cfg.Address))
	})
	if err != nil {
		return nil, fmt.Errorf("i2c_set_bus: %w", err)
	}

	m.log.Info("i2c bus configured", "oid", cfg.OID, "bus", cfg.Bus, "rate", cfg.Rate, "address", cfg.Address)
	return &I2CBus{mcu: m, oid: cfg.OID, address: uint16(cfg.Address)}, nil
}

// Tx writes w and, when r is non-empty, reads len(r) bytes back. A write
// followed by a read becomes one i2c_read with w as the register.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	if addr != b.address {
		return fmt.Errorf("i2c oid %d is bound to 0x%02x, not 0x%02x", b.oid, b.address, addr)
	}

	if len(r) == 0 {
		return b.mcu.SendCommand("i2c_write", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(b.oid))
			protocol.EncodeVLQBytes(out, w)
		})
	}

	payload, err := b.mcu.Query("i2c_read", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(b.oid))
		protocol.EncodeVLQBytes(out, w)
		protocol.EncodeVLQUint(out, uint32(len(r)))
	}, "i2c_read_response")
	if err != nil {
		return err
	}

	oid, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return fmt.Errorf("i2c_read_response: %w", err)
	}
	if oid != uint32(b.oid) {
		return fmt.Errorf("i2c_read_response for oid %d, expected %d", oid, b.oid)
	}
	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return fmt.Errorf("i2c_read_response: %w", err)
	}
	if len(data) != len(r) {
		return fmt.Errorf("i2c_read_response: got %d bytes, expected %d", len(data), len(r))
	}
	copy(r, data)
	return nil
}

// Close releases the bus together with the MCU link
func (b *I2CBus) Close() error {
	return b.mcu.Close()
}
