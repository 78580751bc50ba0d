package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Input modes
const (
	ModeKeyboard  = "KEYBOARD"
	ModeBKeyboard = "BKEYBOARD"
	ModeFile      = "FILE"
)

// GPIO drivers
const (
	GPIORpio     = "rpio"
	GPIOExpander = "expander"
	GPIOSim      = "sim"
)

// Paper kinds
const (
	PaperA4      = "A4"
	PaperBraille = "BRAILLE"
	PaperNone    = "NONE"
)

var (
	modes     = []string{ModeKeyboard, ModeBKeyboard, ModeFile}
	languages = []string{"ENG", "UEB", "BKB"}
	drivers   = []string{GPIORpio, GPIOExpander, GPIOSim}
)

// Duration is a time.Duration written as a Go duration string ("100ms")
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete CUB configuration
type Config struct {
	Mode            string   `json:"mode" env:"CUB_MODE"`
	WordWrap        bool     `json:"word_wrap" env:"CUB_WRAP"`
	File            string   `json:"file" env:"CUB_FILE"`
	Language        string   `json:"language" env:"CUB_LANGUAGE"`
	Grade           int      `json:"grade" env:"CUB_GRADE"`
	Simulate        bool     `json:"simulate" env:"CUB_SIMULATE"`
	GPIO            string   `json:"gpio" env:"CUB_GPIO"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"CUB_SHUTDOWN_TIMEOUT"`

	Log      LogConfig      `json:"log"`
	Input    InputConfig    `json:"input"`
	MCU      MCUConfig      `json:"mcu"`
	Sim      SimConfig      `json:"sim"`
	Hardware HardwareConfig `json:"hardware"`
}

// LogConfig selects the log level and an optional log file
type LogConfig struct {
	Level string `json:"level" env:"CUB_LOG_LEVEL"`
	File  string `json:"file" env:"CUB_LOG_FILE"`
}

// SlogLevel parses Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}

// InputConfig configures the input sources and their audit logs
type InputConfig struct {
	KeyboardDevice string `json:"keyboard_device" env:"CUB_KEYBOARD_DEVICE"`
	Audit          bool   `json:"audit"`
	InputLog       string `json:"input_log"`
	TranslationLog string `json:"translation_log"`
}

// MCUConfig locates the MCU that bridges the I2C bus of the GPIO expander
type MCUConfig struct {
	Device  string `json:"device" env:"CUB_MCU_DEVICE"`
	Baud    int    `json:"baud"`
	OID     int    `json:"oid"`
	Bus     int    `json:"bus"`
	Rate    int    `json:"rate"`
	Address int    `json:"address"`
}

// SimConfig configures simulated hardware
type SimConfig struct {
	// TimeScale runs simulated time at this fraction of real time; zero
	// runs as fast as possible
	TimeScale float64 `json:"time_scale"`
	Paper     string  `json:"paper"`
}

// StepperPins wires one stepper driver
type StepperPins struct {
	Dir             int  `json:"dir"`
	Step            int  `json:"step"`
	Enable          int  `json:"enable"`
	InvertDir       bool `json:"invert_dir"`
	EnableActiveLow bool `json:"enable_active_low"`
}

// Speed is a stepper speed profile in steps per second
type Speed struct {
	Start float64 `json:"start"`
	Max   float64 `json:"max"`
	Ramp  float64 `json:"ramp"`
}

// Sensor wires one photo sensor. TrueLevel is the pin level (0 or 1) at
// which the sensor reports true.
type Sensor struct {
	Pin       int `json:"pin"`
	TrueLevel int `json:"true_level"`
	Samples   int `json:"samples"`
}

// DCPins wires a DC output
type DCPins struct {
	Dir    int `json:"dir"`
	Enable int `json:"enable"`
}

// PaperSize is the usable area of one sheet in cells and lines
type PaperSize struct {
	Cells int `json:"cells"`
	Lines int `json:"lines"`
}

type TraverserConfig struct {
	Motor         StepperPins `json:"motor"`
	Speed         Speed       `json:"speed"`
	ColSteps      int         `json:"col_steps"`
	CharSteps     int         `json:"char_steps"`
	MaxSteps      int         `json:"max_steps"`
	HomeIncrement int         `json:"home_increment"`
	Home          Sensor      `json:"home"`
}

type SelectorConfig struct {
	Motor        StepperPins `json:"motor"`
	Speed        Speed       `json:"speed"`
	StepsPerTool int         `json:"steps_per_tool"`
	InitialTool  int         `json:"initial_tool"`
	Home         Sensor      `json:"home"`
}

type FeederConfig struct {
	Motor         StepperPins `json:"motor"`
	Speed         Speed       `json:"speed"`
	LineSteps     int         `json:"line_steps"`
	MaxLines      int         `json:"max_lines"`
	PaperMotor    DCPins      `json:"paper_motor"`
	FeedTimeout   Duration    `json:"feed_timeout"`
	InputSensor   Sensor      `json:"input_sensor"`
	OutputSensor  Sensor      `json:"output_sensor"`
	A4Sensor      Sensor      `json:"a4_sensor"`
	BrailleSensor Sensor      `json:"braille_sensor"`
	A4            PaperSize   `json:"a4"`
	Braille       PaperSize   `json:"braille"`

	// DefaultPaper is assumed when neither size sensor detects paper
	DefaultPaper string `json:"default_paper"`
}

type EmbosserConfig struct {
	Coil    DCPins   `json:"coil"`
	Pulse   Duration `json:"pulse"`
	DualDir bool     `json:"dual_dir"`
	Home    Sensor   `json:"home"`
}

// HardwareConfig holds the wiring and mechanics of every actuator
type HardwareConfig struct {
	Traverser TraverserConfig `json:"traverser"`
	Selector  SelectorConfig  `json:"selector"`
	Feeder    FeederConfig    `json:"feeder"`
	Embosser  EmbosserConfig  `json:"embosser"`
}

// Default returns the configuration of the CUB prototype
func Default() *Config {
	return &Config{
		Mode:            ModeKeyboard,
		WordWrap:        false,
		Language:        "ENG",
		Grade:           1,
		GPIO:            GPIORpio,
		ShutdownTimeout: Duration{2 * time.Second},
		Log:             LogConfig{Level: "info"},
		Input: InputConfig{
			InputLog:       "cub_input_log.txt",
			TranslationLog: "cub_translation_log.txt",
		},
		MCU: MCUConfig{
			Baud:    250000,
			Bus:     0,
			Rate:    400000,
			Address: 0x20,
		},
		Sim: SimConfig{Paper: PaperA4},
		Hardware: HardwareConfig{
			Traverser: TraverserConfig{
				Motor:         StepperPins{Dir: 21, Step: 20, Enable: 16},
				Speed:         Speed{Start: 500, Max: 1200, Ramp: 15},
				ColSteps:      16,
				CharSteps:     29,
				MaxSteps:      1800,
				HomeIncrement: 20,
				Home:          Sensor{Pin: 4, TrueLevel: 1},
			},
			Selector: SelectorConfig{
				Motor:        StepperPins{Dir: 6, Step: 13, Enable: 5},
				Speed:        Speed{Start: 20, Max: 60, Ramp: 5},
				StepsPerTool: 7,
				InitialTool:  5,
				Home:         Sensor{Pin: 27, TrueLevel: 1},
			},
			Feeder: FeederConfig{
				Motor:         StepperPins{Dir: 24, Step: 18, Enable: 23},
				Speed:         Speed{Start: 5, Max: 10, Ramp: 1},
				LineSteps:     8,
				MaxLines:      50,
				PaperMotor:    DCPins{Dir: 25, Enable: 12},
				FeedTimeout:   Duration{5 * time.Second},
				InputSensor:   Sensor{Pin: 22, TrueLevel: 0},
				OutputSensor:  Sensor{Pin: 17, TrueLevel: 0},
				A4Sensor:      Sensor{Pin: 14, TrueLevel: 0},
				BrailleSensor: Sensor{Pin: 15, TrueLevel: 0},
				A4:            PaperSize{Cells: 20, Lines: 27},
				Braille:       PaperSize{Cells: 40, Lines: 30},
				DefaultPaper:  PaperA4,
			},
			Embosser: EmbosserConfig{
				Coil:  DCPins{Dir: 26, Enable: 19},
				Pulse: Duration{100 * time.Millisecond},
				Home:  Sensor{Pin: 7, TrueLevel: 1},
			},
		},
	}
}

// applyDefaults fills in values that a user file or the environment left
// empty or zero
func applyDefaults(config *Config) {
	def := Default()

	if config.Mode == "" {
		config.Mode = def.Mode
	}
	if config.Language == "" {
		config.Language = def.Language
	}
	if config.Grade == 0 {
		config.Grade = def.Grade
	}
	if config.GPIO == "" {
		config.GPIO = def.GPIO
	}
	if config.Simulate {
		config.GPIO = GPIOSim
	}
	if config.ShutdownTimeout.Duration <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.Log.Level == "" {
		config.Log.Level = def.Log.Level
	}
	if config.Input.InputLog == "" {
		config.Input.InputLog = def.Input.InputLog
	}
	if config.Input.TranslationLog == "" {
		config.Input.TranslationLog = def.Input.TranslationLog
	}
	if config.MCU.Baud == 0 {
		config.MCU.Baud = def.MCU.Baud
	}
	if config.MCU.Rate == 0 {
		config.MCU.Rate = def.MCU.Rate
	}
	if config.MCU.Address == 0 {
		config.MCU.Address = def.MCU.Address
	}
	if config.Sim.Paper == "" {
		config.Sim.Paper = def.Sim.Paper
	}

	hw, dhw := &config.Hardware, def.Hardware
	applySpeed(&hw.Traverser.Speed, dhw.Traverser.Speed)
	applySpeed(&hw.Selector.Speed, dhw.Selector.Speed)
	applySpeed(&hw.Feeder.Speed, dhw.Feeder.Speed)
	if hw.Feeder.FeedTimeout.Duration <= 0 {
		hw.Feeder.FeedTimeout = dhw.Feeder.FeedTimeout
	}
	if hw.Feeder.DefaultPaper == "" {
		hw.Feeder.DefaultPaper = dhw.Feeder.DefaultPaper
	}
	if hw.Embosser.Pulse.Duration <= 0 {
		hw.Embosser.Pulse = dhw.Embosser.Pulse
	}
}

func applySpeed(s *Speed, def Speed) {
	if s.Start == 0 {
		s.Start = def.Start
	}
	if s.Max == 0 {
		s.Max = def.Max
	}
}

// Validate reports every configuration error
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(modes, c.Mode) {
		errs = append(errs, fmt.Errorf("unknown mode %q, expected one of %v", c.Mode, modes))
	}
	if c.Mode == ModeFile && c.File == "" {
		errs = append(errs, errors.New("FILE mode requires an input file"))
	}
	if !slices.Contains(languages, c.Language) {
		errs = append(errs, fmt.Errorf("unknown language %q, expected one of %v", c.Language, languages))
	}
	if c.Grade != 1 && c.Grade != 2 {
		errs = append(errs, fmt.Errorf("grade must be 1 or 2, got %d", c.Grade))
	}
	if !slices.Contains(drivers, c.GPIO) {
		errs = append(errs, fmt.Errorf("unknown gpio driver %q, expected one of %v", c.GPIO, drivers))
	}
	if c.GPIO == GPIOExpander && c.MCU.Device == "" {
		errs = append(errs, errors.New("expander gpio requires an MCU device"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	trav := c.Hardware.Traverser
	for _, kind := range []string{PaperA4, PaperBraille} {
		size, _ := c.Hardware.Feeder.PaperSize(kind)
		if reach := trav.Reach(size.Cells); reach > trav.MaxSteps {
			errs = append(errs, fmt.Errorf("%s paper: %d cells need %d steps of head travel, max_steps is %d", kind, size.Cells, reach, trav.MaxSteps))
		}
	}

	for name, s := range map[string]Speed{
		"traverser": c.Hardware.Traverser.Speed,
		"selector":  c.Hardware.Selector.Speed,
		"feeder":    c.Hardware.Feeder.Speed,
	} {
		if s.Max < s.Start {
			errs = append(errs, fmt.Errorf("%s: max speed %v below start speed %v", name, s.Max, s.Start))
		}
	}
	return errors.Join(errs...)
}

// Reach returns the head travel in steps from home to the right column
// of the last of cells cells
func (t TraverserConfig) Reach(cells int) int {
	if cells <= 0 {
		return 0
	}
	return (cells-1)*(t.ColSteps+t.CharSteps) + t.ColSteps
}

// PaperSize returns the size of a paper kind
func (f FeederConfig) PaperSize(kind string) (PaperSize, bool) {
	switch kind {
	case PaperA4:
		return f.A4, true
	case PaperBraille:
		return f.Braille, true
	default:
		return PaperSize{}, false
	}
}
