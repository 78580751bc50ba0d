package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Chertan/CUB-Control-Software/config"
	"github.com/Chertan/CUB-Control-Software/lifecycle"
	"github.com/Chertan/CUB-Control-Software/logs"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

var (
	configFile = flag.String("config", "", "CUE configuration file")
	simulate   = flag.Bool("simulate", false, "Run on simulated hardware")
	logLevel   = flag.String("log-level", "warn", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *simulate {
		cfg.Simulate = true
	}
	cfg.Log.Level = *logLevel
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logs.New(logs.Options{Level: level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("CUB Maintenance Console")
	fmt.Println("=======================")
	fmt.Println("Starting components...")

	sys, err := lifecycle.Start(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Initialisation failed: %v\n", err)
		os.Exit(1)
	}
	defer sys.Shutdown()

	fmt.Printf("Ready: %d cells x %d lines\n", sys.Paper.Cells, sys.Paper.Lines)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	console := &console{sys: sys, out: os.Stdout}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if !console.exec(ctx, scanner.Text()) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

type console struct {
	sys *lifecycle.System
	out io.Writer
}

// exec runs one console line and reports whether to keep going
func (c *console) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	name, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Goodbye!")
		return false

	case "help", "?":
		c.help()

	case "estop":
		c.sys.EStop.Trip("Console", "operator request")
		fmt.Fprintln(c.out, "Emergency stop latched")

	case "dict":
		if c.sys.Platform.MCU == nil {
			fmt.Fprintln(c.out, "No MCU connected")
			break
		}
		c.sys.Platform.MCU.PrintDictionary(c.out)

	case "render":
		if c.sys.Platform.Plant == nil {
			fmt.Fprintln(c.out, "Not simulated")
			break
		}
		fmt.Fprint(c.out, c.sys.Platform.Plant.Render())

	default:
		c.send(ctx, name, rest)
	}
	return true
}

func (c *console) send(ctx context.Context, name, rest string) {
	target := c.component(name)
	if target == "" {
		fmt.Fprintf(c.out, "Unknown component: %s (type 'help' for available commands)\n", name)
		return
	}

	cmd, err := protocol.ParseCommand(rest)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if cmd.Op == protocol.OpClose {
		fmt.Fprintln(c.out, "Error: use quit to close the controllers")
		return
	}

	d := c.sys.Dispatcher
	d.Send(target, cmd)
	if err := d.Await(ctx, target); err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	fmt.Fprintln(c.out, protocol.AckOK)
}

// component matches a component name case-insensitively
func (c *console) component(name string) string {
	for _, n := range c.sys.Dispatcher.Components() {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	return ""
}

func (c *console) help() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  <component> <KEY> [INDEX] [DIRECTION] [COUNT]")
	fmt.Fprintf(c.out, "                 - Send a command to one of %s\n", strings.Join(c.sys.Dispatcher.Components(), ", "))
	fmt.Fprintln(c.out, "                   e.g. Traverser MOVE CHAR POS 3, Selector MOVE 101, Feeder PAPER EJECT")
	fmt.Fprintln(c.out, "  estop          - Latch the emergency stop")
	fmt.Fprintln(c.out, "  dict           - Print the MCU dictionary")
	fmt.Fprintln(c.out, "  render         - Print the simulated output")
	fmt.Fprintln(c.out, "  quit/exit/q    - Exit the program")
	fmt.Fprintln(c.out)
}
