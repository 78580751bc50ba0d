package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// file reads an input file line by line. In BKB files each line holds
// keyboard tokens and is split like the keyboard device's lines.
type file struct {
	path     string
	progress io.Writer
	tokenize bool

	f       *os.File
	lines   *bufio.Scanner
	pending []string
	read    int
}

func (f *file) open() error {
	fh, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("Unable to open file with name - %s: %w", f.path, err)
	}
	f.f = fh
	f.lines = bufio.NewScanner(fh)
	return nil
}

func (f *file) next(ctx context.Context) (string, error) {
	for len(f.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := f.nextLine()
		if err != nil {
			return "", err
		}
		if !f.tokenize {
			return line + "\n", nil
		}
		tokens, err := splitTokens(line)
		if err != nil {
			return line, err
		}
		// lines are separated by a space
		f.pending = append(tokens, " ")
	}
	tok := f.pending[0]
	f.pending = f.pending[1:]
	return tok, nil
}

func (f *file) nextLine() (string, error) {
	if !f.lines.Scan() {
		if f.progress != nil && f.read > 0 {
			fmt.Fprintln(f.progress)
		}
		if err := f.lines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	f.read++
	if f.progress != nil {
		fmt.Fprint(f.progress, ".")
	}
	return f.lines.Text(), nil
}

func (f *file) close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}
