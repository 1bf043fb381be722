// The device agent owns the capture pipeline. It decodes line samples
// from a capture front end into packets, filters them, and serves the
// control link toward the host.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.bug.st/serial"

	"github.com/usbshark/usbshark/capture"
	"github.com/usbshark/usbshark/health"
	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/logging"
	"github.com/usbshark/usbshark/usb"
	"github.com/usbshark/usbshark/watchdog"
)

const (
	defaultLinkBaud   = 921600
	defaultSampleBaud = 3000000

	goroutineLimit = 500
)

func main() {
	cmd := &cli.Command{
		Name:  "usbshark-device",
		Usage: "capture agent: decode line samples and serve the host link",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "serial device carrying the host link",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "serve the host link on a TCP address instead of a serial port",
			},
			&cli.IntFlag{
				Name:  "baud",
				Value: defaultLinkBaud,
				Usage: "host link baud rate",
			},
			&cli.StringFlag{
				Name:  "samples",
				Usage: "sample source: serial device, or a recorded sample file for replay",
			},
			&cli.IntFlag{
				Name:  "sample-baud",
				Value: defaultSampleBaud,
				Usage: "sample source baud rate when it is a serial device",
			},
			&cli.StringFlag{
				Name:  "speed",
				Value: "full",
				Usage: "bus speed calibration: low or full",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseSpeed(s string) (usb.Speed, error) {
	switch s {
	case "low":
		return usb.LowSpeed, nil
	case "full":
		return usb.FullSpeed, nil
	default:
		return 0, fmt.Errorf("unknown speed %q (want low or full)", s)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	l, err := logging.NewFromEnv()
	if err != nil {
		return err
	}
	slog.SetDefault(l)

	speed, err := parseSpeed(cmd.String("speed"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := openLinkTransport(ctx, cmd, l)
	if err != nil {
		return err
	}
	defer transport.Close()

	// The link starts reading as soon as it exists, but its command
	// handler needs the capture session, which needs the link. Commands
	// racing that window get Nack(InvalidState).
	var handler atomic.Value
	ls := link.NewSession(transport,
		link.WithLogger(l),
		link.WithHandler(func(ctx context.Context, f link.Frame) error {
			if h, ok := handler.Load().(link.Handler); ok {
				return h(ctx, f)
			}
			return &link.CommandError{Code: link.ErrCodeInvalidState}
		}),
	)
	cs := capture.NewSession(ls,
		capture.WithSpeed(speed),
		capture.WithSessionLogger(l),
	)
	handler.Store(cs.Handler())

	mon := health.NewMonitor(goroutineLimit)
	notifier := watchdog.New()
	if notifier != nil {
		defer notifier.Stopping()
	}

	go func() {
		if err := cs.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error("capture loop exited", slog.Any("error", err))
		}
	}()

	if path := cmd.String("samples"); path != "" {
		src, err := openSource(path, int(cmd.Int("sample-baud")))
		if err != nil {
			return err
		}
		defer src.Close()
		go feedSamples(ctx, cs, src, speed, l)
	} else {
		l.Warn("no sample source configured; serving link only")
	}

	if notifier != nil {
		if err := notifier.Ready(); err != nil {
			l.Warn("sd_notify ready failed", slog.Any("error", err))
		}
	}
	stopPinger := notifier.StartPinger(ctx)
	defer stopPinger()

	supervise(ctx, ls, cs, mon, l)

	ls.Stop()
	return nil
}

// openSource treats the sample flag as a serial device when it names a
// character device, a recorded file otherwise.
func openSource(path string, baud int) (*sampleSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat sample source: %w", err)
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return openSamplePort(path, baud)
	}
	return openSampleFile(path)
}

// openLinkTransport opens the serial port toward the host, or accepts a
// single TCP connection when --listen is given. TCP exists for bench
// setups where the host side runs on the same machine.
func openLinkTransport(ctx context.Context, cmd *cli.Command, l *slog.Logger) (io.ReadWriteCloser, error) {
	if addr := cmd.String("listen"); addr != "" {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		defer ln.Close()
		l.Info("waiting for host connection", slog.String("addr", addr))
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept host connection: %w", err)
		}
		l.Info("host connected", slog.String("remote", conn.RemoteAddr().String()))
		return conn, nil
	}

	device := cmd.String("port")
	if device == "" {
		return nil, errors.New("one of --port or --listen is required")
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: int(cmd.Int("baud")),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open link port %s: %w", device, err)
	}
	l.Info("host link open", slog.String("port", device), slog.Int("baud", int(cmd.Int("baud"))))
	return port, nil
}

// feedSamples drives the line decoder from the sample source until the
// source ends or the context is cancelled. The first driven sample marks
// the bus connected; end of a replay file marks it disconnected.
func feedSamples(ctx context.Context, cs *capture.Session, src *sampleSource, speed usb.Speed, l *slog.Logger) {
	connected := false
	for ctx.Err() == nil {
		s, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.Error("sample source read", slog.Any("error", err))
			}
			break
		}
		if !connected && (s.DPlus || s.DMinus) {
			connected = true
			cs.SetBusState(link.StateConnected, speed)
		}
		cs.Feed(s)
	}
	if connected {
		cs.SetBusState(link.StateDisconnected, speed)
	}
	l.Info("sample source drained")
}

// supervise keeps the health monitor current and marks the agent degraded
// when the link goes down. Degraded is recoverable in principle, so the
// agent stays up (and keeps answering the watchdog) rather than exiting.
func supervise(ctx context.Context, ls *link.Session, cs *capture.Session, mon *health.Monitor, l *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastMatched, lastOverflows uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ls.Done():
			mon.SetDegraded(true)
			l.Error("host link down; agent degraded")
			<-ctx.Done()
			return
		case <-ticker.C:
			matched, _, _, overflows := cs.Counters()
			for ; lastMatched < matched; lastMatched++ {
				mon.RecordPacket()
			}
			if overflows > lastOverflows {
				mon.RecordOverflow(overflows - lastOverflows)
				lastOverflows = overflows
			}
		}
	}
}
