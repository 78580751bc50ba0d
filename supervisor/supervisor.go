// Package supervisor turns the token stream into actuator commands. It
// tracks the print position on the page, decides where lines wrap and
// orders the controllers with barriers so the tool face is settled and
// the head is in place before every strike.
package supervisor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Chertan/CUB-Control-Software/controllers"
	"github.com/Chertan/CUB-Control-Software/core"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// ComponentName identifies the supervisor in operation errors
const ComponentName = "Supervisor"

// TokenSource yields the input tokens
type TokenSource interface {
	Next(ctx context.Context) (protocol.Token, error)
}

// Options configures a print session
type Options struct {
	// WordWrap prints each cell as it arrives. Without it cells are
	// buffered per word and a word that does not fit starts a new line.
	WordWrap bool

	PaperSize   int // cells per line
	PaperLength int // lines per page

	EStop *core.EmergencyStop
}

// Position is the print position on the current page
type Position struct {
	Line int // 1-based
	Char int // 0-based cell on the line

	// Last is the last cell handed to PrintChar, empty after a backspace
	// so the next backspace blanks the cell it backs over
	Last protocol.CellPattern
}

// Supervisor runs one print session
type Supervisor struct {
	d    *Dispatcher
	opts Options
	pos  Position
	word []protocol.CellPattern
	log  *slog.Logger
}

// New creates a supervisor dispatching through d
func New(d *Dispatcher, opts Options) *Supervisor {
	return &Supervisor{
		d:    d,
		opts: opts,
		pos:  Position{Line: 1},
		log:  logs.Component(slog.Default(), ComponentName),
	}
}

// Position returns the current print position
func (s *Supervisor) Position() Position {
	return s.pos
}

// Run prints tokens from src until END OF INPUT. Operation failures are
// logged and printing continues with the next token; Run returns only
// for the end of input, an error from src or ctx cancellation.
func (s *Supervisor) Run(ctx context.Context, src TokenSource) error {
	s.pos = Position{Line: 1}
	s.word = s.word[:0]
	s.log.Info("print session started", "word_wrap", s.opts.WordWrap, "paper_size", s.opts.PaperSize, "paper_length", s.opts.PaperLength)

	for {
		tok, err := src.Next(ctx)
		if err != nil {
			return err
		}

		switch {
		case tok.IsEnd():
			if len(s.word) > 0 {
				if err := s.handle(ctx, s.flush(ctx)); err != nil {
					return err
				}
			}
			s.log.Info("print session finished", "line", s.pos.Line, "char", s.pos.Char)
			return nil

		case tok.IsBackspace():
			if !s.opts.WordWrap && len(s.word) > 0 {
				s.word = s.word[:len(s.word)-1]
				continue
			}
			if err := s.handle(ctx, s.Backspace(ctx, !s.pos.Last.IsSpace())); err != nil {
				return err
			}

		default:
			cell, err := tok.Cell()
			if err != nil {
				s.log.Warn("skipping malformed token", "token", string(tok), "error", err)
				continue
			}
			if err := s.handle(ctx, s.print(ctx, cell)); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) print(ctx context.Context, cell protocol.CellPattern) error {
	if s.opts.WordWrap {
		if err := s.HeadNextChar(ctx, 1); err != nil {
			return err
		}
		return s.PrintChar(ctx, cell)
	}

	if !cell.IsSpace() {
		s.word = append(s.word, cell)
		return nil
	}
	return s.flush(ctx)
}

func (s *Supervisor) flush(ctx context.Context) error {
	word := s.word
	s.word = nil
	return s.PrintWord(ctx, word)
}

// handle logs a failed operation and lets the session continue. Only a
// cancelled context is returned. A hardware fault trips the emergency
// stop.
func (s *Supervisor) handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if errors.Is(err, core.ErrHardwareFault) && s.opts.EStop != nil {
		s.opts.EStop.Trip(ComponentName, err.Error())
	}

	var opErr *protocol.OperationError
	if errors.As(err, &opErr) {
		s.log.Warn("operation failed", "component", opErr.Component, "operation", opErr.Operation, "message", opErr.Message)
	} else {
		s.log.Warn("operation failed", "error", err)
	}
	return nil
}

// PrintWord prints a buffered word followed by a space. The remaining
// length of the word is checked before every cell, so a word that fits
// on a line is never split; a word longer than a line fills lines cell
// by cell.
func (s *Supervisor) PrintWord(ctx context.Context, word []protocol.CellPattern) error {
	for i, cell := range word {
		remaining := len(word) - i
		if len(word) > s.opts.PaperSize {
			remaining = 1
		}
		if err := s.HeadNextChar(ctx, remaining); err != nil {
			return err
		}
		if err := s.PrintChar(ctx, cell); err != nil {
			return err
		}
	}

	// a space that would start the next line is suppressed anyway
	if s.pos.Char+1 > s.opts.PaperSize {
		s.pos.Last = protocol.Space
		return nil
	}
	if err := s.HeadNextChar(ctx, 1); err != nil {
		return err
	}
	return s.PrintChar(ctx, protocol.Space)
}

// PrintChar embosses one cell at the head position. A space at the start
// of a line is dropped unless the previous cell was a space too.
func (s *Supervisor) PrintChar(ctx context.Context, cell protocol.CellPattern) error {
	defer func() { s.pos.Last = cell }()

	if cell.IsSpace() {
		if s.pos.Char == 0 && !s.pos.Last.IsSpace() {
			s.log.Debug("leading space suppressed", "line", s.pos.Line)
			return nil
		}
		s.d.Send(controllers.NameTraverser, protocol.MoveCol(protocol.Pos, 0))
		s.pos.Char++
		return nil
	}

	if err := s.printCol(ctx, cell.Left()); err != nil {
		return err
	}
	s.d.Send(controllers.NameTraverser, protocol.MoveCol(protocol.Pos, 0))
	if err := s.printCol(ctx, cell.Right()); err != nil {
		return err
	}
	s.pos.Char++
	return nil
}

// printCol selects the tool for one column and strikes once both the
// selector and the head have settled
func (s *Supervisor) printCol(ctx context.Context, half string) error {
	s.d.Send(controllers.NameSelector, protocol.SelectTool(half))
	if err := s.d.Await(ctx, controllers.NameSelector, controllers.NameTraverser); err != nil {
		return err
	}
	return s.strike(ctx)
}

func (s *Supervisor) strike(ctx context.Context) error {
	s.d.Send(controllers.NameEmbosser, protocol.Emboss())
	return s.d.Await(ctx, controllers.NameEmbosser)
}

// HeadNextChar moves the head to the next cell. When n more cells do not
// fit on the line it starts a new line, ejecting the sheet and loading
// the next one at the end of a page.
func (s *Supervisor) HeadNextChar(ctx context.Context, n int) error {
	if s.pos.Char+n > s.opts.PaperSize {
		s.d.Send(controllers.NameSelector, protocol.Home())
		if s.pos.Line >= s.opts.PaperLength {
			s.d.Send(controllers.NameFeeder, protocol.EjectPaper())
			s.d.Send(controllers.NameFeeder, protocol.LoadPaper())
			s.pos.Line = 1
		} else {
			s.d.Send(controllers.NameFeeder, protocol.FeedLines(1, protocol.Pos))
			s.pos.Line++
		}
		s.d.Send(controllers.NameTraverser, protocol.Home())
		s.pos.Char = 0
		return s.d.Await(ctx, controllers.NameSelector, controllers.NameTraverser, controllers.NameFeeder)
	}

	if s.pos.Char != 0 {
		s.d.Send(controllers.NameTraverser, protocol.MoveChar(protocol.Pos, 0))
	}
	return s.d.Await(ctx, controllers.NameSelector, controllers.NameTraverser)
}

// Backspace moves back one cell, first overwriting it with the blank
// tool when clear is set. At the start of a line it returns to the end
// of the previous line; at the start of the first line it fails without
// moving.
func (s *Supervisor) Backspace(ctx context.Context, clear bool) error {
	if s.pos.Char == 0 && s.pos.Line == 1 {
		return &protocol.OperationError{
			Component: ComponentName,
			Operation: "Backspace",
			Message:   "Unable to backspace at start of page, no action taken",
		}
	}
	defer func() { s.pos.Last = "" }()

	if s.pos.Char == 0 {
		size := s.opts.PaperSize
		s.d.Send(controllers.NameFeeder, protocol.FeedLines(1, protocol.Neg))
		s.d.Send(controllers.NameSelector, protocol.Home())
		s.d.Send(controllers.NameTraverser, protocol.MoveCol(protocol.Pos, size))
		if size > 1 {
			s.d.Send(controllers.NameTraverser, protocol.MoveChar(protocol.Pos, size-1))
		}
		if err := s.d.Await(ctx); err != nil {
			return err
		}
		s.pos.Line--
		s.pos.Char = size
	}

	if clear {
		s.d.Send(controllers.NameSelector, protocol.Home())
		if err := s.d.Await(ctx, controllers.NameSelector, controllers.NameTraverser); err != nil {
			return err
		}
		if err := s.strike(ctx); err != nil {
			return err
		}
		s.d.Send(controllers.NameTraverser, protocol.MoveCol(protocol.Neg, 0))
		if err := s.d.Await(ctx, controllers.NameTraverser); err != nil {
			return err
		}
		if err := s.strike(ctx); err != nil {
			return err
		}
	} else {
		s.d.Send(controllers.NameTraverser, protocol.MoveCol(protocol.Neg, 0))
	}

	if s.pos.Char-1 > 0 {
		s.d.Send(controllers.NameTraverser, protocol.MoveChar(protocol.Neg, 0))
	}
	s.pos.Char--
	return s.d.Await(ctx)
}
