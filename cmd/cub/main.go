package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/input"
	"github.com/Chertan/CUB-Control-Software/lifecycle"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
	"github.com/Chertan/CUB-Control-Software/supervisor"
)

var (
	configFile = flag.String("config", "", "CUE configuration file")
	mode       = flag.String("mode", "", "Input mode: KEYBOARD, BKEYBOARD or FILE")
	wrap       = flag.Bool("wrap", false, "Word wrap: print each cell as it is typed")
	nowrap     = flag.Bool("nowrap", false, "No word wrap: never split a word across lines")
	file       = flag.String("file", "", "Input file for FILE mode")
	lang       = flag.String("lang", "", "Input language: ENG, UEB or BKB")
	grade      = flag.Int("grade", 0, "Braille grade: 1 or 2")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn or error")
	logFile    = flag.String("log-file", "", "Write logs to this file as well")
	simulate   = flag.Bool("simulate", false, "Run on simulated hardware")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	level, _ := cfg.Log.SlogLevel()
	logger, logCloser, err := logs.New(logs.Options{Level: level, File: cfg.Log.File, Journal: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open log: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("CUB Braille Embosser")
	fmt.Printf("Mode: %s  Language: %s  Grade: %d  Word wrap: %v\n", cfg.Mode, cfg.Language, cfg.Grade, cfg.WordWrap)

	audit, err := openAudit(cfg.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open audit log: %v\n", err)
		return 1
	}
	defer audit.Close()

	platform, err := lifecycle.OpenPlatform(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Initialisation failed: GPIO ERROR: %v\n", err)
		return 1
	}

	src, err := input.New(input.Options{
		Mode:           cfg.Mode,
		Language:       cfg.Language,
		Grade:          cfg.Grade,
		File:           cfg.File,
		Device:         cfg.Input.KeyboardDevice,
		Progress:       os.Stdout,
		InputLog:       audit.input,
		TranslationLog: audit.translation,
		Clock:          platform.Clock,
	})
	if err != nil {
		platform.Close()
		fmt.Fprintf(os.Stderr, "Initialisation failed: %v\n", err)
		return 1
	}
	if err := src.Open(); err != nil {
		platform.Close()
		fmt.Fprintf(os.Stderr, "Initialisation failed: %v\n", err)
		return 1
	}
	defer src.Close()

	fmt.Println("Starting components...")
	sys, err := lifecycle.StartOn(ctx, cfg, platform)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Initialisation failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := sys.Shutdown(); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()
	plant := platform.Plant
	fmt.Printf("Ready: %d cells x %d lines\n", sys.Paper.Cells, sys.Paper.Lines)

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- src.Run(ctx)
	}()

	s := supervisor.New(sys.Dispatcher, supervisor.Options{
		WordWrap:    cfg.WordWrap,
		PaperSize:   sys.Paper.Cells,
		PaperLength: sys.Paper.Lines,
		EStop:       sys.EStop,
	})
	printErr := s.Run(ctx, src)

	if ctx.Err() != nil {
		fmt.Println("\nShutdown signal received, closing CUB")
		return 0
	}
	if printErr != nil {
		slog.Error("print session", "error", printErr)
	}

	var closeReq *protocol.CloseRequest
	var inputErr *protocol.InputError
	switch err := <-inputDone; {
	case errors.As(err, &closeReq):
		fmt.Println(closeReq.Error())
	case errors.As(err, &inputErr):
		fmt.Fprintf(os.Stderr, "Input error: %v\n", inputErr)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	if plant != nil {
		fmt.Println("\nSimulated output:")
		fmt.Print(plant.Render())
	}
	fmt.Println("Closing CUB")
	return 0
}

// loadConfig layers the command line over the configuration file and
// the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	if *wrap && *nowrap {
		return nil, errors.New("-wrap and -nowrap are exclusive")
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = strings.ToUpper(*mode)
		case "wrap":
			cfg.WordWrap = *wrap
		case "nowrap":
			cfg.WordWrap = !*nowrap
		case "file":
			cfg.File = *file
		case "lang":
			cfg.Language = strings.ToUpper(*lang)
		case "grade":
			cfg.Grade = *grade
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		case "simulate":
			cfg.Simulate = *simulate
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type auditLogs struct {
	input       io.Writer
	translation io.Writer
	files       []*os.File
}

func openAudit(cfg config.InputConfig) (*auditLogs, error) {
	a := &auditLogs{}
	if !cfg.Audit {
		return a, nil
	}

	open := func(name string) (io.Writer, error) {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		a.files = append(a.files, f)
		return f, nil
	}

	var err error
	if a.input, err = open(cfg.InputLog); err != nil {
		return nil, err
	}
	if a.translation, err = open(cfg.TranslationLog); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *auditLogs) Close() error {
	var errs []error
	for _, f := range a.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
