// command powermaxctl is the internal tool for testing the PowerLink
// panel driver against real hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"powermax.dev/driver/powermax"
)

var (
	serialDev = flag.String("device", "", "serial device")
	pin       = flag.Int("pin", 0, "PowerLink enrolment PIN (default 3622)")
	dump      = flag.Bool("dump", false, "with monitor: dump the domain model as JSON on every status change")
	verbose   = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "monitor"
	}

	transport, err := powermax.Open(*serialDev)
	if err != nil {
		return fmt.Errorf("powermaxctl: %w", err)
	}

	min := powermax.LogNotice
	if *verbose {
		min = powermax.LogDebug
	}
	logger := &powermax.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags), Min: min}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := powermax.EngineConfig{EnrollPIN: *pin}
	if cmd == "monitor" && *dump {
		cfg.OnStatusChange = func(e *powermax.Engine) {
			e.DumpJSON(os.Stdout)
		}
	}
	e := powermax.New(cfg, transport, powermax.RealClock(), logger)

	switch cmd {
	case "arm-home":
		return runCommand(ctx, e, transport, powermax.CommandArmHome)
	case "arm-away":
		return runCommand(ctx, e, transport, powermax.CommandArmAway)
	case "disarm":
		return runCommand(ctx, e, transport, powermax.CommandDisarm)
	case "status":
		return runCommand(ctx, e, transport, powermax.CommandReqStatus)
	case "eventlog":
		return runCommand(ctx, e, transport, powermax.CommandGetEventLog)
	case "monitor":
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("powermaxctl: unknown command %q", cmd)
	}
}

// runCommand drives the engine until it reaches Monitoring (or ctx is
// cancelled), then issues cmd and returns as soon as SendCommand has
// been called; it does not wait for the panel's reply.
func runCommand(ctx context.Context, e *powermax.Engine, transport powermax.Transport, cmd powermax.Command) error {
	sent := false
	return driveUntil(ctx, e, transport, func() bool {
		if e.State() != "monitoring" {
			return false
		}
		if !sent {
			sent = true
			e.SendCommand(cmd)
		}
		return sent
	})
}

// driveUntil runs the read/tick loop against transport, polling stop
// after every received chunk and every tick, until it returns true,
// ctx is cancelled, or the transport errs out.
func driveUntil(ctx context.Context, e *powermax.Engine, transport powermax.Transport, stop func() bool) error {
	const tickPeriod = 100 * time.Millisecond
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	readErr := make(chan error, 1)
	read := make(chan []byte)
	go func() {
		buf := make([]byte, 256)
		for ctx.Err() == nil {
			n, err := transport.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case read <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case chunk := <-read:
			e.FeedBytes(chunk)
			if stop() {
				return nil
			}
		case <-ticker.C:
			e.Tick()
			if stop() {
				return nil
			}
		}
	}
}
