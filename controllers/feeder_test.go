package controllers

import (
	"strings"
	"testing"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

func TestFeederPaperSize(t *testing.T) {
	r := newRig(t, config.PaperA4)
	f, err := NewFeeder(r.hw, r.cfg.Feeder)
	if err != nil {
		t.Fatalf("NewFeeder failed: %v", err)
	}

	tests := []struct {
		paper string
		want  config.PaperSize
	}{
		{config.PaperA4, config.PaperSize{Cells: 20, Lines: 27}},
		{config.PaperBraille, config.PaperSize{Cells: 40, Lines: 30}},
		{config.PaperNone, config.PaperSize{Cells: 20, Lines: 27}}, // configured default
	}
	for _, tt := range tests {
		r.plant.SetPaper(tt.paper)
		got, err := f.PaperSize()
		if err != nil {
			t.Fatalf("PaperSize failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.paper, tt.want, got)
		}
	}
}

func TestFeederFeedLines(t *testing.T) {
	r := newRig(t, config.PaperA4)
	f, _ := NewFeeder(r.hw, r.cfg.Feeder)
	ep := start(t, f.Controller)

	if ack := send(t, ep, protocol.FeedLines(3, protocol.Pos)); !ack.OK() {
		t.Fatalf("Expected ACK, got %v", ack)
	}
	if r.plant.Line() != 4 {
		t.Errorf("Expected line 4, got %d", r.plant.Line())
	}
	if ack := send(t, ep, protocol.FeedLines(1, protocol.Neg)); !ack.OK() {
		t.Fatalf("Expected ACK, got %v", ack)
	}
	if r.plant.Line() != 3 {
		t.Errorf("Expected line 3, got %d", r.plant.Line())
	}

	if ack := send(t, ep, protocol.Command{Op: protocol.OpFeed, Index: "x", Dir: protocol.Pos}); ack.OK() {
		t.Error("Expected failure for a non-numeric line count")
	}
	if ack := send(t, ep, protocol.Home()); !ack.OK() {
		t.Errorf("Expected HOME to be acknowledged, got %v", ack)
	}
}

func TestFeederEjectAndLoad(t *testing.T) {
	r := newRig(t, config.PaperA4)
	f, _ := NewFeeder(r.hw, r.cfg.Feeder)
	ep := start(t, f.Controller)

	ack := send(t, ep, protocol.LoadPaper())
	if ack.OK() || !strings.Contains(ack.String(), "paper detected in embosser") {
		t.Errorf("Expected load refused with a sheet loaded, got %v", ack)
	}

	if ack := send(t, ep, protocol.EjectPaper()); !ack.OK() {
		t.Fatalf("Expected ACK for eject, got %v", ack)
	}
	if r.plant.Loaded() {
		t.Error("Expected sheet ejected")
	}

	ack = send(t, ep, protocol.EjectPaper())
	if ack.OK() || !strings.Contains(ack.String(), "No paper detected to eject") {
		t.Errorf("Expected eject refused without paper, got %v", ack)
	}

	if ack := send(t, ep, protocol.LoadPaper()); !ack.OK() {
		t.Fatalf("Expected ACK for load, got %v", ack)
	}
	if !r.plant.Loaded() || r.plant.Sheet() != 2 || r.plant.Line() != 1 {
		t.Errorf("Expected sheet 2 at line 1, got loaded=%v sheet=%d line=%d", r.plant.Loaded(), r.plant.Sheet(), r.plant.Line())
	}
}

func TestFeederLoadEmptyTray(t *testing.T) {
	r := newRig(t, config.PaperNone)
	f, _ := NewFeeder(r.hw, r.cfg.Feeder)
	ep := start(t, f.Controller)

	ack := send(t, ep, protocol.LoadPaper())
	if ack.OK() || !strings.Contains(ack.String(), "Paper not detected after feeding") {
		t.Errorf("Expected load timeout, got %v", ack)
	}
	if r.gpio.Level(core.GPIOPin(r.cfg.Feeder.PaperMotor.Enable)) {
		t.Error("Expected paper motor off after the timeout")
	}
}
