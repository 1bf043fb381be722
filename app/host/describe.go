package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/gousb"
	"github.com/urfave/cli/v3"

	"github.com/usbshark/usbshark/hexdump"
)

const (
	reqTypeStandardIn = 0x80
	reqGetDescriptor  = 0x06

	descTypeDevice = 0x01
	descTypeConfig = 0x02

	deviceDescLen     = 18
	configDescHdrLen  = 9
	configTotalLenOff = 2
)

type ctrlSetup struct {
	BmReqType byte
	BReq      byte
	WValue    uint16
	WIndex    uint16
	WLength   uint16
}

func logCtrl(l *slog.Logger, tag string, s ctrlSetup, n int, err error) {
	if err != nil {
		l.Error(tag,
			"bm", fmt.Sprintf("0x%02x", s.BmReqType),
			"bReq", fmt.Sprintf("0x%02x", s.BReq),
			"wValue", s.WValue, "wIndex", s.WIndex, "wLength", s.WLength,
			"err", err)
		return
	}
	l.Debug(tag,
		"bm", fmt.Sprintf("0x%02x", s.BmReqType),
		"bReq", fmt.Sprintf("0x%02x", s.BReq),
		"wValue", s.WValue, "wIndex", s.WIndex, "wLength", s.WLength,
		"n", n)
}

func ctrlIn(l *slog.Logger, d *gousb.Device, bm, bReq byte, wValue, wIndex, wLength uint16) ([]byte, error) {
	buf := make([]byte, wLength)
	n, err := d.Control(bm, bReq, wValue, wIndex, buf)
	logCtrl(l, "CTRL-IN", ctrlSetup{bm, bReq, wValue, wIndex, wLength}, n, err)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func parseVIDPID(s string) (gousb.ID, gousb.ID, error) {
	vidStr, pidStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("want vid:pid, got %q", s)
	}
	vid, err := strconv.ParseUint(vidStr, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor id %q", vidStr)
	}
	pid, err := strconv.ParseUint(pidStr, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product id %q", pidStr)
	}
	return gousb.ID(vid), gousb.ID(pid), nil
}

// runDescribe fetches a device's descriptors over the host controller
// and prints them as hex dumps. Useful to cross-check what the analyzer
// saw on the wire during enumeration.
func runDescribe(ctx context.Context, cmd *cli.Command) error {
	l := slog.Default()

	target := cmd.Args().First()
	if target == "" {
		return fmt.Errorf("usage: describe <vid:pid> (hex, e.g. 0483:5740)")
	}
	vid, pid, err := parseVIDPID(target)
	if err != nil {
		return err
	}

	gctx := gousb.NewContext()
	defer gctx.Close()

	dev, err := gctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	if dev == nil {
		return fmt.Errorf("device %s not found", target)
	}
	defer dev.Close()

	devDesc, err := ctrlIn(l, dev, reqTypeStandardIn, reqGetDescriptor, descTypeDevice<<8, 0, deviceDescLen)
	if err != nil {
		return fmt.Errorf("device descriptor: %w", err)
	}
	fmt.Println("Device descriptor:")
	fmt.Println(hexdump.Dump(devDesc))

	// The config descriptor header carries the full combined length.
	hdr, err := ctrlIn(l, dev, reqTypeStandardIn, reqGetDescriptor, descTypeConfig<<8, 0, configDescHdrLen)
	if err != nil {
		return fmt.Errorf("config descriptor header: %w", err)
	}
	if len(hdr) < configDescHdrLen {
		return fmt.Errorf("short config descriptor header: %d bytes", len(hdr))
	}
	total := binary.LittleEndian.Uint16(hdr[configTotalLenOff:])
	full, err := ctrlIn(l, dev, reqTypeStandardIn, reqGetDescriptor, descTypeConfig<<8, 0, total)
	if err != nil {
		return fmt.Errorf("config descriptor: %w", err)
	}
	fmt.Println("\nConfiguration descriptor:")
	fmt.Println(hexdump.Dump(full))
	return nil
}
