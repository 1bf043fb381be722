// Records the raw sample stream from a capture front end to a file for
// later replay with usbshark-device --samples.
package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.bug.st/serial"
)

const defaultBaud = 3000000

func main() {
	if len(os.Args) < 3 {
		slog.Error("Usage: usbshark_recorder <port> <output_file> [baud]")
		os.Exit(1)
	}

	device := os.Args[1]
	output := os.Args[2]
	baud := defaultBaud
	if len(os.Args) >= 4 {
		v, err := strconv.Atoi(os.Args[3])
		if err != nil || v <= 0 {
			slog.Error("Invalid baud rate", "value", os.Args[3])
			os.Exit(1)
		}
		baud = v
	}

	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		slog.Error("Failed to open sample port", "port", device, "error", err.Error())
		os.Exit(1)
	}

	f, err := os.Create(output)
	if err != nil {
		slog.Error("Failed to create output file", "path", output, "error", err.Error())
		os.Exit(1)
	}
	defer f.Close()

	// Closing the port unblocks the copy loop on SIGINT/SIGTERM.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("Stopping recording")
		port.Close()
	}()

	slog.Info("Recording sample stream", "port", device, "baud", baud, "output", output)

	pl := NewProgressLogger(f, slog.Default())
	n, err := io.Copy(pl, port)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		slog.Warn("Recording ended with error", "error", err.Error())
	}

	slog.Info("Recording finished", "bytes", n, "output", output)
}
