// The host tool drives a capture agent over its control link: it starts
// and stops captures, reconstructs transactions from the packet stream,
// and presents them on the terminal or over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/logging"
	"github.com/usbshark/usbshark/reassembly"
)

func main() {
	cmd := &cli.Command{
		Name:  "usbshark",
		Usage: "USB capture host: control the agent and inspect traffic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "device",
				Usage: "serial port of the capture hardware",
			},
			&cli.StringFlag{
				Name:  "connect",
				Usage: "TCP address of a listening capture agent",
			},
			&cli.IntFlag{
				Name:  "baud",
				Usage: "serial baud rate",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "capture",
				Usage: "start a capture and stream reconstructed transactions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "live",
						Usage: "interactive scrollback view (requires a TTY)",
					},
					&cli.StringFlag{
						Name:  "api",
						Usage: "also serve the HTTP API on this address",
					},
				},
				Action: runCapture,
			},
			{
				Name:   "status",
				Usage:  "query the agent's status",
				Action: runStatus,
			},
			{
				Name:   "stop",
				Usage:  "stop a running capture",
				Action: runStop,
			},
			{
				Name:   "devices",
				Usage:  "list USB devices attached to this machine",
				Action: runDevices,
			},
			{
				Name:      "describe",
				Usage:     "fetch a local device's descriptors as hex dumps",
				ArgsUsage: "<vid:pid>",
				Action:    runDescribe,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cli.Command) (hostConfig, *slog.Logger, error) {
	l, err := logging.NewFromEnv()
	if err != nil {
		return hostConfig{}, nil, err
	}
	slog.SetDefault(l)

	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return hostConfig{}, nil, err
	}
	if v := cmd.String("device"); v != "" {
		cfg.Device = v
	}
	if v := cmd.String("connect"); v != "" {
		cfg.Connect = v
	}
	if v := int(cmd.Int("baud")); v != 0 {
		cfg.Baud = v
	}
	return cfg, l, nil
}

func runCapture(ctx context.Context, cmd *cli.Command) error {
	cfg, l, err := setup(cmd)
	if err != nil {
		return err
	}
	cc, err := cfg.captureConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cl, conn, err := dial(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer cl.Close()

	tctx, cancel := context.WithTimeout(ctx, commandTimeout)
	err = cl.StartCapture(tctx, cc)
	cancel()
	if err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer func() {
		// Leave the agent idle on the way out; its link may already be gone.
		tctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := cl.StopCapture(tctx); err != nil && !errors.Is(err, link.ErrSessionClosed) {
			l.Warn("stop capture", slog.Any("error", err))
		}
	}()

	st := newTxStore(defaultStoreCap)

	apiAddr := cmd.String("api")
	if apiAddr == "" {
		apiAddr = cfg.API
	}
	if apiAddr != "" {
		app := buildFiberApp(st, cl, cc, l)
		go func() {
			if err := app.Listen(apiAddr); err != nil {
				l.Error("http api", slog.Any("error", err))
			}
		}()
		defer app.Shutdown()
		l.Info("http api listening", slog.String("addr", apiAddr))
	}

	if cmd.Bool("live") && isTTY(os.Stdout) {
		return captureLive(ctx, cl, st)
	}
	return capturePlain(ctx, cl, st)
}

// capturePlain streams one line per reconstructed transaction to stdout.
func capturePlain(ctx context.Context, cl *client, st *txStore) error {
	recon := reassembly.New()
	fmt.Printf("%8s %12s %-14s %-8s %-14s %s\n", "id", "time µs", "kind", "addr.ep", "status", "description")

	emit := func(t reassembly.Transaction) {
		rec := st.Add(t)
		target := fmt.Sprintf("%d.%d", rec.DeviceAddress, rec.Endpoint)
		if rec.Kind == reassembly.KindStartOfFrame {
			target = fmt.Sprintf("#%d", rec.FrameNumber)
		}
		fmt.Printf("%8d %12d %-14s %-8s %-14s %s\n",
			rec.ID, rec.Timestamp, rec.Kind, target, rec.Status, rec.Description)
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range recon.Flush() {
				emit(t)
			}
			return nil
		case pkt, ok := <-cl.Packets():
			if !ok {
				for _, t := range recon.Flush() {
					emit(t)
				}
				return errors.New("link closed")
			}
			for _, t := range recon.Feed(pkt) {
				emit(t)
			}
		}
	}
}

// captureLive renders the transaction stream in an alt-screen viewport.
func captureLive(ctx context.Context, cl *client, st *txStore) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newLiveModel(), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		recon := reassembly.New()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tctx, cancel := context.WithTimeout(ctx, commandTimeout)
				rep, err := cl.Status(tctx)
				cancel()
				if err == nil {
					prog.Send(statusMsg(rep))
				}
			case pkt, ok := <-cl.Packets():
				if !ok {
					prog.Quit()
					return
				}
				for _, t := range recon.Feed(pkt) {
					prog.Send(txMsg(st.Add(t)))
				}
			}
		}
	}()

	_, err := prog.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	cfg, l, err := setup(cmd)
	if err != nil {
		return err
	}
	cl, conn, err := dial(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer cl.Close()

	tctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	rep, err := cl.Status(tctx)
	if err != nil {
		return err
	}

	if isTTY(os.Stdout) {
		fmt.Println(renderStatusChips(rep, 0, 100))
		return nil
	}
	fmt.Printf("devices=%d capture=%s buffer=%d\n", rep.DeviceCount, rep.CaptureState, rep.BufferUsage)
	return nil
}

func runStop(ctx context.Context, cmd *cli.Command) error {
	cfg, l, err := setup(cmd)
	if err != nil {
		return err
	}
	cl, conn, err := dial(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer cl.Close()

	tctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := cl.StopCapture(tctx); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	fmt.Println("capture stopped")
	return nil
}

func runDevices(ctx context.Context, cmd *cli.Command) error {
	rows, err := listDevices()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no USB devices found")
		return nil
	}
	fmt.Println(renderDeviceTable(rows))
	return nil
}
