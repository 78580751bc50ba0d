package controllers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

func TestEmbosserStrike(t *testing.T) {
	for _, dual := range []bool{false, true} {
		r := newRig(t, config.PaperA4)
		cfg := r.cfg.Embosser
		cfg.DualDir = dual
		emb, err := NewEmbosser(r.hw, cfg)
		if err != nil {
			t.Fatalf("NewEmbosser failed: %v", err)
		}
		ep := start(t, emb.Controller)

		// the self-test strike
		if n := len(r.plant.Strikes()); n != 1 {
			t.Errorf("dual=%v: expected 1 self-test strike, got %d", dual, n)
		}

		if ack := send(t, ep, protocol.Emboss()); !ack.OK() {
			t.Fatalf("dual=%v: expected ACK, got %v", dual, ack)
		}
		if n := len(r.plant.Strikes()); n != 2 {
			t.Errorf("dual=%v: expected 2 strikes, got %d", dual, n)
		}
		if r.gpio.Level(core.GPIOPin(cfg.Coil.Enable)) {
			t.Errorf("dual=%v: expected coil off after the strike", dual)
		}
	}
}

func TestEmbosserSelfTestFailures(t *testing.T) {
	tests := []struct {
		name  string
		plate bool // level forced onto the home sensor pin
		want  string
	}{
		{"stuck home", true, "did not leave Home Position"},
		{"not home", false, "not detected at Home Position"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, config.PaperA4)
			emb, _ := NewEmbosser(r.hw, r.cfg.Embosser)
			r.gpio.SetInput(core.GPIOPin(r.cfg.Embosser.Home.Pin), tt.plate)

			errc := make(chan error, 1)
			go func() { errc <- emb.Run(context.Background()) }()

			ack := awaitAck(t, emb.Endpoint())
			if ack.OK() {
				t.Fatal("Expected failed self-test")
			}
			var initErr *protocol.InitialisationError
			err := <-errc
			if !errors.As(err, &initErr) || !strings.Contains(initErr.Message, tt.want) {
				t.Errorf("Expected InitialisationError with %q, got %v", tt.want, err)
			}
		})
	}
}
