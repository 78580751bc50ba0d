package controllers

import (
	"time"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
)

// pollInterval is how often a controller polls a sensor while waiting
const pollInterval = 5 * time.Millisecond

// Hardware is the process-wide hardware context injected into every
// controller
type Hardware struct {
	GPIO  core.GPIODriver
	EStop *core.EmergencyStop
	Clock core.Clock
}

func (h Hardware) clock() core.Clock {
	if h.Clock == nil {
		return core.SystemClock{}
	}
	return h.Clock
}

func (h Hardware) stepper(name string, pins config.StepperPins, speed config.Speed) (*core.Stepper, error) {
	return core.NewStepper(h.GPIO, h.EStop, h.clock(), core.StepperConfig{
		Name:            name,
		Dir:             core.GPIOPin(pins.Dir),
		Step:            core.GPIOPin(pins.Step),
		Enable:          core.GPIOPin(pins.Enable),
		InvertDir:       pins.InvertDir,
		EnableActiveLow: pins.EnableActiveLow,
		Speed:           core.SpeedProfile{Start: speed.Start, Max: speed.Max, Ramp: speed.Ramp},
	})
}

func (h Hardware) sensor(name string, s config.Sensor) (*core.PhotoSensor, error) {
	return core.NewPhotoSensor(h.GPIO, h.clock(), core.SensorConfig{
		Name:        name,
		Pin:         core.GPIOPin(s.Pin),
		TrueLevel:   s.TrueLevel == 1,
		SampleCount: s.Samples,
		SampleTime:  time.Millisecond,
	})
}

func (h Hardware) dc(name string, pins config.DCPins) (*core.DCOutput, error) {
	return core.NewDCOutput(h.GPIO, h.EStop, h.clock(), core.DCConfig{
		Name:   name,
		Dir:    core.GPIOPin(pins.Dir),
		Enable: core.GPIOPin(pins.Enable),
	})
}
