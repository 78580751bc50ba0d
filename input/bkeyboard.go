package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/shlex"

	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/host/serial"
)

// demoSequence is typed when no Braille keyboard device is configured
var demoSequence = []string{
	"<uppercase>", "t", "h", "i", "s", " ", "i", "s", " ", "a", " ", "t", "e", "s", "t", ".",
}

// demoPace is the delay between two demonstration key presses
const demoPace = 500 * time.Millisecond

// brailleKeyboard reads key tokens from the Braille keyboard. The device
// sends lines of shell-quoted tokens, e.g. `<uppercase> t h e " "`.
type brailleKeyboard struct {
	device string
	clock  core.Clock

	port    serial.Port
	lines   *bufio.Scanner
	pending []string
	demo    int
}

func (b *brailleKeyboard) open() error {
	if b.device == "" {
		return nil
	}
	port, err := serial.Open(serial.KeyboardConfig(b.device))
	if err != nil {
		return err
	}
	b.port = port
	b.lines = bufio.NewScanner(port)
	return nil
}

func (b *brailleKeyboard) next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.port == nil {
		if b.demo >= len(demoSequence) {
			return "", io.EOF
		}
		b.clock.Sleep(demoPace)
		tok := demoSequence[b.demo]
		b.demo++
		return tok, nil
	}

	for len(b.pending) == 0 {
		if !b.lines.Scan() {
			if err := b.lines.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		tokens, err := splitTokens(b.lines.Text())
		if err != nil {
			return b.lines.Text(), err
		}
		b.pending = tokens
	}
	tok := b.pending[0]
	b.pending = b.pending[1:]
	return tok, nil
}

func (b *brailleKeyboard) close() error {
	if b.port == nil {
		return nil
	}
	return b.port.Close()
}

// splitTokens splits a line of keyboard tokens
func splitTokens(line string) ([]string, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("keyboard line %q: %w", line, err)
	}
	return tokens, nil
}
