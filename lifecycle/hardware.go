package lifecycle

import (
	"fmt"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/host/mcu"
	"github.com/Chertan/CUB-Control-Software/host/serial"
	"github.com/Chertan/CUB-Control-Software/sim"
)

// Platform is the hardware the controllers run on
type Platform struct {
	GPIO  core.GPIODriver
	Clock core.Clock

	// Plant is the simulated embosser, nil on real hardware
	Plant *sim.Plant

	// MCU bridges the I2C bus of the expander, nil otherwise
	MCU *mcu.MCU
}

// Close releases the GPIO driver and the MCU link
func (p *Platform) Close() error {
	var err error
	if p.GPIO != nil {
		err = p.GPIO.Close()
	}
	if p.MCU != nil {
		if cerr := p.MCU.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// OpenPlatform selects the GPIO driver named by the configuration. The
// simulated driver is wired to a plant and runs on virtual time unless a
// time scale is configured.
func OpenPlatform(cfg *config.Config) (*Platform, error) {
	if cfg.Simulate || cfg.GPIO == config.GPIOSim {
		gpio := core.NewSimGPIO()
		p := &Platform{
			GPIO:  gpio,
			Plant: sim.New(gpio, cfg.Hardware, cfg.Sim.Paper),
		}
		if cfg.Sim.TimeScale > 0 {
			p.Clock = core.NewScaledClock(cfg.Sim.TimeScale)
		} else {
			p.Clock = core.NewVirtualClock()
		}
		return p, nil
	}

	switch cfg.GPIO {
	case config.GPIORpio:
		gpio, err := core.OpenRPiGPIO()
		if err != nil {
			return nil, err
		}
		return &Platform{GPIO: gpio, Clock: core.SystemClock{}}, nil

	case config.GPIOExpander:
		return openExpander(cfg.MCU)

	default:
		return nil, fmt.Errorf("unknown gpio driver %q", cfg.GPIO)
	}
}

func openExpander(cfg config.MCUConfig) (*Platform, error) {
	m := mcu.NewMCU()
	link := serial.DefaultConfig(cfg.Device)
	if cfg.Baud > 0 {
		link.Baud = cfg.Baud
	}
	if err := m.ConnectWithConfig(link); err != nil {
		return nil, fmt.Errorf("connecting to MCU on %s: %w", cfg.Device, err)
	}
	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, fmt.Errorf("retrieving MCU dictionary: %w", err)
	}

	bus, err := m.OpenI2C(mcu.I2CConfig{
		OID:     uint8(cfg.OID),
		Bus:     uint32(cfg.Bus),
		Rate:    uint32(cfg.Rate),
		Address: uint8(cfg.Address),
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("opening bridged I2C bus: %w", err)
	}

	gpio, err := core.NewExpanderGPIO(bus, uint8(cfg.Address))
	if err != nil {
		m.Close()
		return nil, err
	}
	return &Platform{GPIO: gpio, Clock: core.SystemClock{}, MCU: m}, nil
}
