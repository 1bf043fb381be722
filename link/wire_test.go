package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/usbshark/usbshark/usb"
)

// indexBareSync finds a sync byte that is not the stuffed half of an
// escape pair. An escaped ESC legitimately produces one on the wire
// (0x55^0xFF == 0xAA), so a plain byte scan would misfire.
func indexBareSync(p []byte) int {
	escaped := false
	for i, b := range p {
		if escaped {
			escaped = false
			continue
		}
		if b == EscapeByte {
			escaped = true
			continue
		}
		if b == SyncByte {
			return i
		}
	}
	return -1
}

func TestEscapeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"plain", []byte{0x01, 0x02, 0x03}},
		{"sync bytes", []byte{SyncByte, 0x00, SyncByte}},
		{"escape bytes", []byte{EscapeByte, EscapeByte}},
		{"mixed", []byte{0x00, SyncByte, EscapeByte, 0xFF}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			escaped := Escape(tt.in)
			if i := indexBareSync(escaped); i >= 0 {
				t.Fatalf("escaped output contains bare sync byte at %d: % x", i, escaped)
			}
			got, err := Unescape(escaped)
			if err != nil {
				t.Fatalf("Unescape: %v", err)
			}
			if !bytes.Equal(got, tt.in) {
				t.Errorf("round trip = % x, want % x", got, tt.in)
			}
		})
	}
}

func TestUnescapeTrailingEscape(t *testing.T) {
	if _, err := Unescape([]byte{0x01, EscapeByte}); !errors.Is(err, ErrTruncatedEscape) {
		t.Fatalf("err = %v, want ErrTruncatedEscape", err)
	}
}

func TestCRC16CheckValue(t *testing.T) {
	// CCITT-FALSE check value for the standard nine-digit test vector.
	if got := CRC16([]byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC16(123456789) = %#04x, want 0x29b1", got)
	}
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16(empty) = %#04x, want 0xffff", got)
	}
}

// The transport checksum and the USB bus data checksum must stay
// distinct algorithms: same inputs, different outputs.
func TestTransportChecksumIsNotBusChecksum(t *testing.T) {
	// Transport: 0xFFFF for empty, 0xE1F0 for a zero byte.
	// Bus: 0x0000 for empty, 0xFD02 for a zero byte.
	inputs := [][]byte{
		nil,
		{0x00},
	}
	for _, in := range inputs {
		if CRC16(in) == usb.CRC16(in) {
			t.Errorf("transport and bus CRC agree on % x; the algorithms have been conflated", in)
		}
	}
}

func TestChecksumCoversHeader(t *testing.T) {
	payload := []byte{0x01, 0x02}
	a := Checksum(TypeStartCapture, 0, payload)
	if b := Checksum(TypeStartCapture, 1, payload); a == b {
		t.Error("checksum ignores sequence")
	}
	if b := Checksum(TypeStopCapture, 0, payload); a == b {
		t.Error("checksum ignores frame type")
	}
}

func TestEncoderSequenceWraps(t *testing.T) {
	var e Encoder
	e.seq = 254

	want := []uint8{254, 255, 0, 1}
	for _, w := range want {
		_, seq, err := e.Encode(TypeGetStatus, nil)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if seq != w {
			t.Fatalf("seq = %d, want %d", seq, w)
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	var e Encoder
	if _, _, err := e.Encode(TypeUsbPacket, make([]byte, MaxPayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestEncodedFrameHasSingleBareSync(t *testing.T) {
	var e Encoder
	wire, _, err := e.Encode(TypeUsbPacket, []byte{SyncByte, EscapeByte, SyncByte, 0x42})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire[0] != SyncByte {
		t.Fatalf("frame does not start with sync byte: % x", wire)
	}
	if i := indexBareSync(wire[1:]); i >= 0 {
		t.Errorf("bare sync byte inside frame at offset %d: % x", i+1, wire)
	}
}
