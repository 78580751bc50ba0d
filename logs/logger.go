package logs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Level is shared by every handler that filters by level
var Level = new(slog.LevelVar)

// Options configures New
type Options struct {
	Level slog.Level

	// Terminal receives text logs; nil means stderr
	Terminal io.Writer

	// File, when set, receives a copy of every record
	File string

	// Journal enables the systemd journal handler
	Journal bool
}

// New builds the process logger: a text handler on the terminal (left
// out when running as a systemd service), an optional log file and the
// systemd journal, fanned out with slog-multi. The returned closer
// releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	Level.Set(opts.Level)

	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	isSystemdService := false
	cgroupPath, err := getCgroupPath()
	if err == nil {
		isSystemdService = strings.HasSuffix(
			path.Dir(cgroupPath),
			".service",
		)
	}

	// local
	var terminalHandler slog.Handler
	if !isSystemdService {
		w := opts.Terminal
		if w == nil {
			w = os.Stderr
		}
		terminalHandler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: Level,
		})
		handlers = append(handlers, terminalHandler)
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{
			Level: Level,
		}))
	}

	// systemd journal
	if opts.Journal {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			if terminalHandler != nil {
				record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
				record.Add("error", err)
				_ = terminalHandler.Handle(context.Background(), record)
			}
		} else {
			handlers = append(handlers, journalHandler)
		}
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Component returns a logger tagged with a component name
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	str = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
	return str
}

func getCgroupPath() (string, error) {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	parts := strings.Split(string(content), ":")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[2]), nil
	}
	return "", nil
}
