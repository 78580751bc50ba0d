// Package sim models the CUB mechanics behind a simulated GPIO driver so
// the controllers run unchanged without hardware: step pulses move the
// head, the tool wheel and the paper, and the photo sensors report what
// those positions imply.
package sim

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
)

// ejectMargin is the number of lines past the last printable line after
// which a sheet leaves the output sensor
const ejectMargin = 2

// Strike is one embosser strike as it landed on the paper
type Strike struct {
	Sheet int
	Line  int // 1-based line on the sheet
	Head  int // head position in steps from home
	Tool  int // tool face index under the plate
}

// Plant is the simulated embosser
type Plant struct {
	mu   sync.Mutex
	gpio *core.SimGPIO
	hw   config.HardwareConfig

	paper string

	head     int
	headMax  int
	tool     int
	toolFull int
	feed     int
	loaded   bool
	sheet    int
	plateOff bool

	strikes []Strike
}

// New wires a plant to gpio. The sheet tray holds paper of kind paper
// (A4, BRAILLE or NONE); a first sheet is already loaded unless the tray
// is empty. The head and the tool wheel start away from home.
func New(gpio *core.SimGPIO, hw config.HardwareConfig, paper string) *Plant {
	p := &Plant{
		gpio:     gpio,
		hw:       hw,
		paper:    paper,
		headMax:  hw.Traverser.MaxSteps + hw.Traverser.CharSteps,
		toolFull: 8 * hw.Selector.StepsPerTool,
		head:     3*hw.Traverser.CharSteps + 5,
		tool:     hw.Selector.InitialTool*hw.Selector.StepsPerTool + 2,
		loaded:   paper != config.PaperNone,
		sheet:    1,
	}
	p.wire()
	return p
}

func (p *Plant) wire() {
	trav, sel, feed, emb := p.hw.Traverser, p.hw.Selector, p.hw.Feeder, p.hw.Embosser

	p.onStep(trav.Motor, func(delta int) {
		p.head = min(max(p.head+delta, 0), p.headMax)
	})
	p.onStep(sel.Motor, func(delta int) {
		p.tool = ((p.tool+delta)%p.toolFull + p.toolFull) % p.toolFull
	})
	p.onStep(feed.Motor, func(delta int) {
		if !p.loaded {
			return
		}
		p.feed = max(p.feed+delta, 0)
		if p.feed >= p.sheetSteps() {
			p.loaded = false
			p.feed = 0
			p.sheet++
		}
	})

	p.gpio.OnChange(core.GPIOPin(feed.PaperMotor.Enable), func(on bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		forward := p.gpio.Level(core.GPIOPin(feed.PaperMotor.Dir))
		if on && forward && !p.loaded && p.paper != config.PaperNone {
			p.loaded = true
			p.feed = 0
		}
	})

	coil := func(bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		off := p.gpio.Level(core.GPIOPin(emb.Coil.Enable)) && p.gpio.Level(core.GPIOPin(emb.Coil.Dir))
		if off && !p.plateOff && p.loaded {
			p.strikes = append(p.strikes, Strike{
				Sheet: p.sheet,
				Line:  p.feed/max(feed.LineSteps, 1) + 1,
				Head:  p.head,
				Tool:  p.tool / sel.StepsPerTool,
			})
		}
		p.plateOff = off
	}
	p.gpio.OnChange(core.GPIOPin(emb.Coil.Enable), coil)
	p.gpio.OnChange(core.GPIOPin(emb.Coil.Dir), coil)

	p.sensor(trav.Home, func() bool { return p.head == 0 })
	p.sensor(sel.Home, func() bool { return p.tool == 0 })
	p.sensor(feed.InputSensor, func() bool { return p.loaded })
	p.sensor(feed.OutputSensor, func() bool { return p.loaded })
	p.sensor(feed.A4Sensor, func() bool { return p.paper == config.PaperA4 })
	p.sensor(feed.BrailleSensor, func() bool { return p.paper == config.PaperBraille })
	p.sensor(emb.Home, func() bool { return !p.plateOff })
}

func (p *Plant) sheetSteps() int {
	lines := p.hw.Feeder.A4.Lines
	if p.paper == config.PaperBraille {
		lines = p.hw.Feeder.Braille.Lines
	}
	return (lines + ejectMargin) * p.hw.Feeder.LineSteps
}

// onStep calls move with +1 or -1 on every step pulse of an energised motor
func (p *Plant) onStep(m config.StepperPins, move func(delta int)) {
	p.gpio.OnChange(core.GPIOPin(m.Step), func(high bool) {
		if !high {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gpio.Level(core.GPIOPin(m.Enable)) == m.EnableActiveLow {
			return
		}
		if p.gpio.Level(core.GPIOPin(m.Dir)) != m.InvertDir {
			move(1)
		} else {
			move(-1)
		}
	})
}

// sensor drives a sensor pin from a plant condition
func (p *Plant) sensor(s config.Sensor, detected func() bool) {
	p.gpio.DriveInput(core.GPIOPin(s.Pin), func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return detected() == (s.TrueLevel == 1)
	})
}

// HeadSteps returns the head position in steps from home
func (p *Plant) HeadSteps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// ToolSteps returns the tool wheel position in steps from home
func (p *Plant) ToolSteps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tool
}

// Loaded reports whether a sheet is in the embosser
func (p *Plant) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Line returns the 1-based line under the head
func (p *Plant) Line() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feed/p.hw.Feeder.LineSteps + 1
}

// Sheet returns the number of the current sheet
func (p *Plant) Sheet() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sheet
}

// SetPaper changes the kind of paper in the tray
func (p *Plant) SetPaper(paper string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paper = paper
}

// Strikes returns every strike so far
func (p *Plant) Strikes() []Strike {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Strike(nil), p.strikes...)
}

// ClearStrikes forgets the strikes so far, such as those of the
// embosser self-test
func (p *Plant) ClearStrikes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes = nil
}

// Render draws the embossed sheets with Unicode Braille characters, one
// text line per embossed line and a blank line between sheets.
func (p *Plant) Render() string {
	trav := p.hw.Traverser
	pitch := trav.ColSteps + trav.CharSteps

	type key struct{ sheet, line, cell int }
	dots := map[key]rune{}
	width := map[[2]int]int{}
	var lines [][2]int

	for _, s := range p.Strikes() {
		cell, off := s.Head/pitch, s.Head%pitch
		shift := 0
		if off >= trav.ColSteps {
			shift = 3
		}
		k := key{s.Sheet, s.Line, cell}
		dots[k] |= rune(s.Tool&7) << shift

		l := [2]int{s.Sheet, s.Line}
		if _, ok := width[l]; !ok {
			lines = append(lines, l)
		}
		width[l] = max(width[l], cell+1)
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i][0] != lines[j][0] {
			return lines[i][0] < lines[j][0]
		}
		return lines[i][1] < lines[j][1]
	})

	var b strings.Builder
	prevSheet := 0
	for _, l := range lines {
		if prevSheet != 0 && l[0] != prevSheet {
			b.WriteString("\n")
		}
		prevSheet = l[0]
		for c := 0; c < width[l]; c++ {
			b.WriteRune(0x2800 + dots[key{l[0], l[1], c}])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s Strike) String() string {
	return fmt.Sprintf("sheet %d line %d head %d tool %d", s.Sheet, s.Line, s.Head, s.Tool)
}
