// Package link implements the device↔host transport: sync/escape framing,
// the transport CRC16, sequence numbers, and command/ACK/NACK semantics,
// plus the byte-exact payload layouts carried inside frames.
//
// Wire format, byte-exact for interoperability with existing capture
// hardware:
//
//	SYNC(0xAA, unescaped) | TYPE | LEN | SEQ | DATA[LEN] | CRC_HI | CRC_LO
//
// Every byte after SYNC equal to SYNC or ESCAPE is sent as ESCAPE, b^0xFF.
package link

const (
	// SyncByte starts every frame and is never escaped.
	SyncByte byte = 0xAA
	// EscapeByte introduces an escaped byte (the following byte XOR 0xFF).
	EscapeByte byte = 0x55

	// MaxPayload is the largest DATA length a frame can carry.
	MaxPayload = 255

	headerLen = 3 // TYPE, LEN, SEQ (SYNC excluded)
	footerLen = 2 // CRC_HI, CRC_LO
)

// Type identifies a frame's purpose on the link.
type Type byte

const (
	// Commands, host to device.
	TypeReset        Type = 0x01
	TypeStartCapture Type = 0x02
	TypeStopCapture  Type = 0x03
	TypeSetFilter    Type = 0x04
	TypeGetStatus    Type = 0x05
	TypeSetTimestamp Type = 0x06
	TypeSetConfig    Type = 0x07

	// Data reports, device to host.
	TypeUsbPacket        Type = 0x80
	TypeStateChange      Type = 0x81
	TypeStatusReport     Type = 0x82
	TypeErrorReport      Type = 0x83
	TypeBufferOverflow   Type = 0x84
	TypeDeviceDescriptor Type = 0x85
	TypeConfigDescriptor Type = 0x86
	TypeStringDescriptor Type = 0x87

	// Acknowledgments. These are exempt from further acknowledgment.
	TypeAck  Type = 0xF0
	TypeNack Type = 0xF1
)

// IsCommand reports whether t is a host-to-device command type.
func (t Type) IsCommand() bool { return t >= TypeReset && t <= TypeSetConfig }

// IsReport reports whether t is a device-to-host data report type.
func (t Type) IsReport() bool { return t >= TypeUsbPacket && t <= TypeStringDescriptor }

// IsAck reports whether t is an acknowledgment type.
func (t Type) IsAck() bool { return t == TypeAck || t == TypeNack }

func (t Type) String() string {
	switch t {
	case TypeReset:
		return "Reset"
	case TypeStartCapture:
		return "StartCapture"
	case TypeStopCapture:
		return "StopCapture"
	case TypeSetFilter:
		return "SetFilter"
	case TypeGetStatus:
		return "GetStatus"
	case TypeSetTimestamp:
		return "SetTimestamp"
	case TypeSetConfig:
		return "SetConfig"
	case TypeUsbPacket:
		return "UsbPacket"
	case TypeStateChange:
		return "StateChange"
	case TypeStatusReport:
		return "StatusReport"
	case TypeErrorReport:
		return "ErrorReport"
	case TypeBufferOverflow:
		return "BufferOverflow"
	case TypeDeviceDescriptor:
		return "DeviceDescriptor"
	case TypeConfigDescriptor:
		return "ConfigDescriptor"
	case TypeStringDescriptor:
		return "StringDescriptor"
	case TypeAck:
		return "Ack"
	case TypeNack:
		return "Nack"
	default:
		return "Unknown"
	}
}

// ErrorCode is carried by Nack and ErrorReport payloads.
type ErrorCode byte

const (
	ErrCodeNone           ErrorCode = 0x00
	ErrCodeInvalidCommand ErrorCode = 0x01
	ErrCodeBufferOverflow ErrorCode = 0x02
	ErrCodeCrcFailure     ErrorCode = 0x03
	ErrCodeInvalidState   ErrorCode = 0x04
	ErrCodeUsbError       ErrorCode = 0x05
	ErrCodeTimeout        ErrorCode = 0x06
	ErrCodeInternal       ErrorCode = 0xFF
)

func (e ErrorCode) String() string {
	switch e {
	case ErrCodeNone:
		return "none"
	case ErrCodeInvalidCommand:
		return "invalid command"
	case ErrCodeBufferOverflow:
		return "buffer overflow"
	case ErrCodeCrcFailure:
		return "crc failure"
	case ErrCodeInvalidState:
		return "invalid state"
	case ErrCodeUsbError:
		return "usb error"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeInternal:
		return "internal error"
	default:
		return "unknown"
	}
}
