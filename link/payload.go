package link

import (
	"encoding/binary"
	"fmt"

	"github.com/usbshark/usbshark/usb"
)

// CaptureConfig is the 9-byte payload of StartCapture and SetConfig.
type CaptureConfig struct {
	Speed usb.Speed

	// Transfer-type capture enables.
	Control     bool
	Bulk        bool
	Interrupt   bool
	Isochronous bool

	// AddressFilter and EndpointFilter restrict capture to a single
	// device address or endpoint; FilterOff disables the restriction.
	AddressFilter  uint8
	EndpointFilter uint8

	// Direction exclusions: FilterIn drops IN packets, FilterOut drops
	// OUT and SETUP packets.
	FilterIn  bool
	FilterOut bool
}

// FilterOff disables an address or endpoint restriction.
const FilterOff uint8 = 0

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// MarshalBinary encodes c into its wire layout.
func (c CaptureConfig) MarshalBinary() ([]byte, error) {
	return []byte{
		byte(c.Speed),
		boolByte(c.Control),
		boolByte(c.Bulk),
		boolByte(c.Interrupt),
		boolByte(c.Isochronous),
		c.AddressFilter,
		c.EndpointFilter,
		boolByte(c.FilterIn),
		boolByte(c.FilterOut),
	}, nil
}

// DecodeCaptureConfig parses a CaptureConfig payload.
func DecodeCaptureConfig(p []byte) (CaptureConfig, error) {
	if len(p) < 9 {
		return CaptureConfig{}, fmt.Errorf("capture config: %d bytes: %w", len(p), ErrShortPayload)
	}
	return CaptureConfig{
		Speed:          usb.Speed(p[0]),
		Control:        p[1] != 0,
		Bulk:           p[2] != 0,
		Interrupt:      p[3] != 0,
		Isochronous:    p[4] != 0,
		AddressFilter:  p[5],
		EndpointFilter: p[6],
		FilterIn:       p[7] != 0,
		FilterOut:      p[8] != 0,
	}, nil
}

const usbRecordHeaderLen = 8

// EncodeUsbPacket flattens a decoded packet into the UsbPacket report
// payload: timestamp (4 bytes, big endian), PID, device address,
// endpoint, CRC flags (bit 7 = CRC valid), then the packet data.
func EncodeUsbPacket(p *usb.RawPacket) []byte {
	buf := make([]byte, usbRecordHeaderLen, usbRecordHeaderLen+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.Timestamp)
	buf[4] = byte(p.PID)
	buf[5] = p.DeviceAddress
	buf[6] = p.Endpoint
	if p.CRCValid {
		buf[7] = 0x80
	}
	return append(buf, p.Payload...)
}

// DecodeUsbPacket parses a UsbPacket report payload back into a packet.
func DecodeUsbPacket(p []byte) (usb.RawPacket, error) {
	if len(p) < usbRecordHeaderLen {
		return usb.RawPacket{}, fmt.Errorf("usb packet record: %d bytes: %w", len(p), ErrShortPayload)
	}
	pkt := usb.RawPacket{
		Timestamp:     binary.BigEndian.Uint32(p[0:4]),
		PID:           usb.PID(p[4]),
		DeviceAddress: p[5],
		Endpoint:      p[6],
		CRCValid:      p[7]&0x80 != 0,
	}
	if len(p) > usbRecordHeaderLen {
		pkt.Payload = append([]byte(nil), p[usbRecordHeaderLen:]...)
	}
	return pkt, nil
}

// DeviceState is the bus attachment state carried by StateChange.
type DeviceState uint8

const (
	StateDisconnected DeviceState = 0x00
	StateConnected    DeviceState = 0x01
	StateReset        DeviceState = 0x02
)

func (s DeviceState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// StateChange reports a bus attachment transition. Speed is meaningful
// only when State is StateConnected.
type StateChange struct {
	State DeviceState
	Speed usb.Speed
}

func (s StateChange) MarshalBinary() ([]byte, error) {
	return []byte{byte(s.State), byte(s.Speed)}, nil
}

func DecodeStateChange(p []byte) (StateChange, error) {
	if len(p) < 1 {
		return StateChange{}, fmt.Errorf("state change: empty payload: %w", ErrShortPayload)
	}
	sc := StateChange{State: DeviceState(p[0])}
	if len(p) > 1 {
		sc.Speed = usb.Speed(p[1])
	}
	return sc, nil
}

// CaptureState is the capture engine state carried by StatusReport.
type CaptureState uint8

const (
	CaptureIdle    CaptureState = 0x00
	CaptureRunning CaptureState = 0x01
)

func (s CaptureState) String() string {
	if s == CaptureRunning {
		return "running"
	}
	return "idle"
}

// StatusReport is the periodic device status payload.
type StatusReport struct {
	DeviceCount  uint8
	CaptureState CaptureState
	BufferUsage  uint16 // ring occupancy, big endian on the wire
}

func (s StatusReport) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	buf[0] = s.DeviceCount
	buf[1] = byte(s.CaptureState)
	binary.BigEndian.PutUint16(buf[2:4], s.BufferUsage)
	return buf, nil
}

func DecodeStatusReport(p []byte) (StatusReport, error) {
	if len(p) < 4 {
		return StatusReport{}, fmt.Errorf("status report: %d bytes: %w", len(p), ErrShortPayload)
	}
	return StatusReport{
		DeviceCount:  p[0],
		CaptureState: CaptureState(p[1]),
		BufferUsage:  binary.BigEndian.Uint16(p[2:4]),
	}, nil
}

// ErrorReport is an asynchronous device-side error notification.
type ErrorReport struct {
	Code    ErrorCode
	Context uint8
}

func (e ErrorReport) MarshalBinary() ([]byte, error) {
	return []byte{byte(e.Code), e.Context}, nil
}

func DecodeErrorReport(p []byte) (ErrorReport, error) {
	if len(p) < 2 {
		return ErrorReport{}, fmt.Errorf("error report: %d bytes: %w", len(p), ErrShortPayload)
	}
	return ErrorReport{Code: ErrorCode(p[0]), Context: p[1]}, nil
}

// ackPayload builds the Ack payload: the acknowledged frame's sequence.
func ackPayload(seq uint8) []byte { return []byte{seq} }

// nackPayload builds the Nack payload: the rejected frame's sequence and
// an error code.
func nackPayload(seq uint8, code ErrorCode) []byte { return []byte{seq, byte(code)} }
