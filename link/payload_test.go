package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/usbshark/usbshark/usb"
)

func TestCaptureConfigRoundTrip(t *testing.T) {
	cfg := CaptureConfig{
		Speed:          usb.FullSpeed,
		Control:        true,
		Interrupt:      true,
		AddressFilter:  5,
		EndpointFilter: FilterOff,
		FilterIn:       true,
	}
	raw, err := cfg.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(raw) != 9 {
		t.Fatalf("encoded length = %d, want 9", len(raw))
	}
	got, err := DecodeCaptureConfig(raw)
	if err != nil {
		t.Fatalf("DecodeCaptureConfig: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestDecodeCaptureConfigShort(t *testing.T) {
	if _, err := DecodeCaptureConfig(make([]byte, 8)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("err = %v, want ErrShortPayload", err)
	}
}

func TestUsbPacketRecordLayout(t *testing.T) {
	pkt := usb.RawPacket{
		PID:           usb.PIDData0,
		Timestamp:     0x01020304,
		CRCValid:      true,
		DeviceAddress: 5,
		Endpoint:      2,
		Payload:       []byte{0xDE, 0xAD},
	}
	raw := EncodeUsbPacket(&pkt)

	want := []byte{0x01, 0x02, 0x03, 0x04, byte(usb.PIDData0), 5, 2, 0x80, 0xDE, 0xAD}
	if !bytes.Equal(raw, want) {
		t.Fatalf("record = % x, want % x", raw, want)
	}

	got, err := DecodeUsbPacket(raw)
	if err != nil {
		t.Fatalf("DecodeUsbPacket: %v", err)
	}
	if got.Timestamp != pkt.Timestamp || got.PID != pkt.PID || !got.CRCValid {
		t.Errorf("decoded header = %+v", got)
	}
	if got.DeviceAddress != 5 || got.Endpoint != 2 {
		t.Errorf("address/endpoint = %d/%d", got.DeviceAddress, got.Endpoint)
	}
	if !bytes.Equal(got.Payload, pkt.Payload) {
		t.Errorf("payload = % x", got.Payload)
	}
}

func TestUsbPacketRecordCRCInvalid(t *testing.T) {
	pkt := usb.RawPacket{PID: usb.PIDAck, Timestamp: 1}
	raw := EncodeUsbPacket(&pkt)
	if raw[7] != 0x00 {
		t.Fatalf("crc flags = %#02x, want 0x00", raw[7])
	}
	got, err := DecodeUsbPacket(raw)
	if err != nil {
		t.Fatalf("DecodeUsbPacket: %v", err)
	}
	if got.CRCValid {
		t.Error("CRCValid = true, want false")
	}
	if len(got.Payload) != 0 {
		t.Errorf("payload = % x, want empty", got.Payload)
	}
}

func TestDecodeUsbPacketShort(t *testing.T) {
	if _, err := DecodeUsbPacket(make([]byte, 7)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("err = %v, want ErrShortPayload", err)
	}
}

func TestStateChangeRoundTrip(t *testing.T) {
	sc := StateChange{State: StateConnected, Speed: usb.LowSpeed}
	raw, _ := sc.MarshalBinary()
	got, err := DecodeStateChange(raw)
	if err != nil {
		t.Fatalf("DecodeStateChange: %v", err)
	}
	if got != sc {
		t.Errorf("round trip = %+v, want %+v", got, sc)
	}
}

func TestStatusReportLayout(t *testing.T) {
	sr := StatusReport{DeviceCount: 1, CaptureState: CaptureRunning, BufferUsage: 0x0180}
	raw, _ := sr.MarshalBinary()
	want := []byte{1, 1, 0x01, 0x80}
	if !bytes.Equal(raw, want) {
		t.Fatalf("encoded = % x, want % x", raw, want)
	}
	got, err := DecodeStatusReport(raw)
	if err != nil {
		t.Fatalf("DecodeStatusReport: %v", err)
	}
	if got != sr {
		t.Errorf("round trip = %+v, want %+v", got, sr)
	}
}

func TestErrorReportRoundTrip(t *testing.T) {
	er := ErrorReport{Code: ErrCodeBufferOverflow, Context: 42}
	raw, _ := er.MarshalBinary()
	got, err := DecodeErrorReport(raw)
	if err != nil {
		t.Fatalf("DecodeErrorReport: %v", err)
	}
	if got != er {
		t.Errorf("round trip = %+v, want %+v", got, er)
	}
}

func TestAckNackPayloads(t *testing.T) {
	if got := ackPayload(17); !bytes.Equal(got, []byte{17}) {
		t.Errorf("ack payload = % x", got)
	}
	if got := nackPayload(17, ErrCodeCrcFailure); !bytes.Equal(got, []byte{17, 0x03}) {
		t.Errorf("nack payload = % x", got)
	}
}
