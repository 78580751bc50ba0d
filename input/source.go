// Package input produces the token stream the supervisor prints: cell
// patterns translated from the keyboard, the Braille keyboard or a file,
// plus the BACKSPACE and END OF INPUT sentinels.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Chertan/CUB-Control-Software/braille"
	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// ComponentName identifies the input source in readiness acks and errors
const ComponentName = "Input"

// producer yields raw input one unit at a time: a key, a keyboard token
// or a line. io.EOF ends the input.
type producer interface {
	open() error
	next(ctx context.Context) (string, error)
	close() error
}

// Options configures a Source
type Options struct {
	Mode     string
	Language string
	Grade    int

	// File is read in FILE mode
	File string

	// Keyboard is read in KEYBOARD mode, os.Stdin when nil
	Keyboard io.Reader

	// Device is the serial device of the Braille keyboard. Without one
	// a demonstration sequence is typed.
	Device string

	// Progress receives a dot per line read in FILE mode
	Progress io.Writer

	// audit trails, may be nil
	InputLog       io.Writer
	TranslationLog io.Writer

	Clock core.Clock
}

// Source translates raw input into tokens on its own goroutine
type Source struct {
	opts   Options
	lang   string
	grade  int
	prod   producer
	tokens chan protocol.Token
	log    *slog.Logger
}

// New creates a source for opts.Mode
func New(opts Options) (*Source, error) {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	s := &Source{
		opts:   opts,
		grade:  opts.Grade,
		tokens: make(chan protocol.Token, 64),
		log:    logs.Component(slog.Default(), ComponentName),
	}

	switch opts.Mode {
	case config.ModeKeyboard:
		in := opts.Keyboard
		if in == nil {
			in = os.Stdin
		}
		s.prod = &keyboard{in: in}
		s.lang = braille.English
	case config.ModeBKeyboard:
		s.prod = &brailleKeyboard{device: opts.Device, clock: opts.Clock}
		s.lang = braille.Keyboard
	case config.ModeFile:
		if opts.File == "" {
			return nil, errors.New("FILE mode requires an input file")
		}
		lang, err := braille.ParseLanguage(opts.Language)
		if err != nil {
			return nil, err
		}
		s.prod = &file{path: opts.File, progress: opts.Progress, tokenize: lang == braille.Keyboard}
		s.lang = lang
	default:
		return nil, fmt.Errorf("invalid input mode %q", opts.Mode)
	}
	if s.grade == 0 {
		s.grade = 1
	}
	return s, nil
}

// Open prepares the input device. A failure is an initialisation error.
func (s *Source) Open() error {
	s.log.Info("opening input", "mode", s.opts.Mode, "language", s.lang, "grade", s.grade)
	if err := s.prod.open(); err != nil {
		return &protocol.InitialisationError{Component: ComponentName, Message: err.Error()}
	}
	return nil
}

// Close releases the input device
func (s *Source) Close() error {
	return s.prod.close()
}

// Run reads and translates input until it ends, then sends END OF INPUT
// and closes the token stream. A user close is returned as a
// *protocol.CloseRequest and malformed input as a *protocol.InputError.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.tokens)

	err := s.run(ctx)
	var closeReq *protocol.CloseRequest
	switch {
	case err == nil:
		s.log.Info("input finished")
	case errors.As(err, &closeReq):
		s.log.Info("close requested", "source", closeReq.Source, "message", closeReq.Message)
	default:
		s.log.Warn("input failed", "error", err)
	}

	select {
	case s.tokens <- protocol.EndOfInput:
	case <-ctx.Done():
	}
	return err
}

func (s *Source) run(ctx context.Context) error {
	for {
		raw, err := s.prod.next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var closeReq *protocol.CloseRequest
			if errors.As(err, &closeReq) || errors.Is(err, context.Canceled) {
				return err
			}
			return &protocol.InputError{Input: raw, Message: err.Error()}
		}
		if s.lang == braille.Keyboard {
			s.audit(s.opts.InputLog, raw+" ")
		} else {
			s.audit(s.opts.InputLog, raw)
		}

		var tokens []protocol.Token
		if raw == protocol.Backspace {
			tokens = []protocol.Token{protocol.Backspace}
		} else {
			cells, err := braille.Translate(raw, s.lang, s.grade)
			if err != nil {
				return &protocol.InputError{Input: raw, Message: err.Error()}
			}
			tokens = make([]protocol.Token, len(cells))
			for i, c := range cells {
				tokens[i] = protocol.Token(c)
			}
		}

		s.log.Debug("input", "raw", raw, "tokens", tokens)
		for _, tok := range tokens {
			s.audit(s.opts.TranslationLog, string(tok)+"\n")
			select {
			case s.tokens <- tok:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Source) audit(w io.Writer, text string) {
	if w == nil {
		return
	}
	if _, err := io.WriteString(w, text); err != nil {
		s.log.Warn("writing audit log", "error", err)
	}
}

// Next returns the next token. The stream always ends with END OF INPUT;
// reading past it returns END OF INPUT again.
func (s *Source) Next(ctx context.Context) (protocol.Token, error) {
	select {
	case tok, ok := <-s.tokens:
		if !ok {
			return protocol.EndOfInput, nil
		}
		return tok, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Tokens is a fixed token stream, for tests and replays
type Tokens struct {
	tokens []protocol.Token
}

// NewTokens returns a stream of the given tokens
func NewTokens(tokens ...string) *Tokens {
	t := &Tokens{}
	for _, tok := range tokens {
		t.tokens = append(t.tokens, protocol.Token(tok))
	}
	return t
}

// Next returns the next token, END OF INPUT once exhausted
func (t *Tokens) Next(ctx context.Context) (protocol.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(t.tokens) == 0 {
		return protocol.EndOfInput, nil
	}
	tok := t.tokens[0]
	t.tokens = t.tokens[1:]
	return tok, nil
}
