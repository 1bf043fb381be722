package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"go.bug.st/serial"

	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/usb"
)

// client is the host side of the control link: it issues commands and
// routes the device's report stream.
type client struct {
	ls *link.Session
	l  *slog.Logger

	packets chan usb.RawPacket

	mu         sync.Mutex
	statusWait []chan link.StatusReport
}

// dial opens the transport from the config (TCP to a bench agent, or the
// capture hardware's serial port) and starts the report consumer.
func dial(ctx context.Context, cfg hostConfig, l *slog.Logger) (*client, io.Closer, error) {
	var (
		rw  io.ReadWriteCloser
		err error
	)
	switch {
	case cfg.Connect != "":
		var d net.Dialer
		rw, err = d.DialContext(ctx, "tcp", cfg.Connect)
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", cfg.Connect, err)
		}
	case cfg.Device != "":
		rw, err = serial.Open(cfg.Device, &serial.Mode{
			BaudRate: cfg.Baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: 1,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Device, err)
		}
	default:
		return nil, nil, errors.New("no device configured: set --device, --connect, or " + envDevice)
	}

	c := &client{
		ls:      link.NewSession(rw, link.WithLogger(l)),
		l:       l,
		packets: make(chan usb.RawPacket, 256),
	}
	go c.consume(ctx)
	return c, rw, nil
}

// consume drains the report stream until the link dies or the context
// ends. Undecodable reports are logged and skipped; they never stop the
// stream.
func (c *client) consume(ctx context.Context) {
	defer close(c.packets)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ls.Done():
			return
		case f, ok := <-c.ls.Reports():
			if !ok {
				return
			}
			c.route(ctx, f)
		}
	}
}

func (c *client) route(ctx context.Context, f link.Frame) {
	switch f.Type {
	case link.TypeUsbPacket:
		pkt, err := link.DecodeUsbPacket(f.Payload)
		if err != nil {
			c.l.Warn("bad packet report", slog.Any("error", err))
			return
		}
		select {
		case c.packets <- pkt:
		case <-ctx.Done():
		}
	case link.TypeStatusReport:
		st, err := link.DecodeStatusReport(f.Payload)
		if err != nil {
			c.l.Warn("bad status report", slog.Any("error", err))
			return
		}
		c.mu.Lock()
		waiters := c.statusWait
		c.statusWait = nil
		c.mu.Unlock()
		for _, w := range waiters {
			w <- st
		}
	case link.TypeStateChange:
		sc, err := link.DecodeStateChange(f.Payload)
		if err != nil {
			c.l.Warn("bad state change", slog.Any("error", err))
			return
		}
		if sc.State == link.StateConnected {
			c.l.Info("bus state", slog.String("state", sc.State.String()), slog.String("speed", sc.Speed.String()))
		} else {
			c.l.Info("bus state", slog.String("state", sc.State.String()))
		}
	case link.TypeErrorReport:
		er, err := link.DecodeErrorReport(f.Payload)
		if err != nil {
			c.l.Warn("bad error report", slog.Any("error", err))
			return
		}
		c.l.Warn("device error", slog.String("code", er.Code.String()), slog.Int("context", int(er.Context)))
	default:
		c.l.Debug("unhandled report", slog.String("type", f.Type.String()))
	}
}

// Packets yields decoded packet reports. The channel closes when the
// link goes down.
func (c *client) Packets() <-chan usb.RawPacket {
	return c.packets
}

func (c *client) StartCapture(ctx context.Context, cc link.CaptureConfig) error {
	payload, err := cc.MarshalBinary()
	if err != nil {
		return err
	}
	return c.ls.Command(ctx, link.TypeStartCapture, payload)
}

func (c *client) StopCapture(ctx context.Context) error {
	return c.ls.Command(ctx, link.TypeStopCapture, nil)
}

func (c *client) Reset(ctx context.Context) error {
	return c.ls.Command(ctx, link.TypeReset, nil)
}

// Status requests a status report and waits for the device to send one.
func (c *client) Status(ctx context.Context) (link.StatusReport, error) {
	w := make(chan link.StatusReport, 1)
	c.mu.Lock()
	c.statusWait = append(c.statusWait, w)
	c.mu.Unlock()

	if err := c.ls.Command(ctx, link.TypeGetStatus, nil); err != nil {
		return link.StatusReport{}, err
	}
	select {
	case st := <-w:
		return st, nil
	case <-ctx.Done():
		return link.StatusReport{}, ctx.Err()
	case <-c.ls.Done():
		return link.StatusReport{}, link.ErrSessionClosed
	}
}

func (c *client) Close() {
	c.ls.Stop()
}
