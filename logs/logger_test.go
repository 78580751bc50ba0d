package logs

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestToJournalKey(t *testing.T) {
	tests := map[string]string{
		"component":   "COMPONENT",
		"ack.op":      "ACK_OP",
		"stepper-dir": "STEPPER_DIR",
		"line2":       "LINE2",
	}
	for in, want := range tests {
		if got := toJournalKey(in); got != want {
			t.Errorf("toJournalKey(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestNewWritesFileAndFiltersLevel(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cub.log")
	var term bytes.Buffer

	logger, closer, err := New(Options{
		Level:    slog.LevelInfo,
		Terminal: &term,
		File:     file,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	Component(logger, "Traverser").Info("homed", "steps", 12)
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(content), "component=Traverser") {
		t.Errorf("Expected component attribute in log file, got %q", content)
	}
	if strings.Contains(string(content), "hidden") {
		t.Error("Expected debug record filtered at info level")
	}

	Level.Set(slog.LevelDebug)
	logger.Debug("visible")
	if !strings.Contains(term.String(), "visible") && !isSystemdService(t) {
		t.Error("Expected debug record after raising the level")
	}
}

func isSystemdService(t *testing.T) bool {
	t.Helper()
	p, err := getCgroupPath()
	return err == nil && strings.HasSuffix(filepath.Dir(p), ".service")
}
