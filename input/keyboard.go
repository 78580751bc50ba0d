package input

import (
	"context"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Control keys of the computer keyboard
const (
	keyInterrupt = 0x03 // Ctrl-C
	keySuspend   = 0x1a // Ctrl-Z
	keyEscape    = 0x1b
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// keyboard reads single key presses. A terminal is switched to raw mode
// so keys arrive without waiting for Enter.
type keyboard struct {
	in    io.Reader
	fd    int
	state *term.State
	buf   [utf8.UTFMax]byte
}

func (k *keyboard) open() error {
	f, ok := k.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	k.fd = int(f.Fd())
	state, err := term.MakeRaw(k.fd)
	if err != nil {
		return err
	}
	k.state = state
	return nil
}

// next blocks in Read; cancelling ctx takes effect at the next key
func (k *keyboard) next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := k.in.Read(k.buf[:1])
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		// the rest of a multi-byte character
		for n < len(k.buf) && !utf8.FullRune(k.buf[:n]) {
			m, err := k.in.Read(k.buf[n : n+1])
			if err != nil {
				return string(k.buf[:n]), err
			}
			n += m
		}

		switch key := k.buf[0]; key {
		case keyInterrupt, keySuspend, keyEscape:
			return "", &protocol.CloseRequest{Source: "Keyboard Input", Message: "Keyboard Interrupt received"}
		case keyBackspace, keyDelete:
			return protocol.Backspace, nil
		case '\r', '\n':
			return " ", nil
		default:
			return string(k.buf[:n]), nil
		}
	}
}

func (k *keyboard) close() error {
	if k.state == nil {
		return nil
	}
	err := term.Restore(k.fd, k.state)
	k.state = nil
	return err
}
