package link

import "sync"

// crcTable is the CRC16-CCITT table (polynomial 0x1021), generated MSB
// first. This is deliberately not the USB data CRC in package usb: the
// transport checksum uses a different polynomial, processes bytes high
// bit first, and is not complemented.
var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func crcUpdate(crc uint16, b byte) uint16 {
	return crc<<8 ^ crcTable[byte(crc>>8)^b]
}

// CRC16 computes the transport checksum of p: CCITT polynomial, initial
// value 0xFFFF, no final complement.
func CRC16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc = crcUpdate(crc, b)
	}
	return crc
}

// Checksum computes the frame checksum over the unescaped header and
// payload: TYPE, LEN, SEQ, DATA.
func Checksum(frameType Type, seq uint8, payload []byte) uint16 {
	crc := uint16(0xFFFF)
	crc = crcUpdate(crc, byte(frameType))
	crc = crcUpdate(crc, byte(len(payload)))
	crc = crcUpdate(crc, seq)
	for _, b := range payload {
		crc = crcUpdate(crc, b)
	}
	return crc
}

func needsEscape(b byte) bool { return b == SyncByte || b == EscapeByte }

func appendEscaped(dst []byte, b byte) []byte {
	if needsEscape(b) {
		return append(dst, EscapeByte, b^0xFF)
	}
	return append(dst, b)
}

// Escape applies byte stuffing to src. The result contains no SyncByte
// and every EscapeByte introduces exactly one stuffed byte.
func Escape(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/8)
	for _, b := range src {
		dst = appendEscaped(dst, b)
	}
	return dst
}

// Unescape reverses Escape. A trailing EscapeByte with no byte following
// it is a framing error.
func Unescape(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	escaped := false
	for _, b := range src {
		if escaped {
			dst = append(dst, b^0xFF)
			escaped = false
			continue
		}
		if b == EscapeByte {
			escaped = true
			continue
		}
		dst = append(dst, b)
	}
	if escaped {
		return nil, ErrTruncatedEscape
	}
	return dst, nil
}

// Frame is a decoded transport frame.
type Frame struct {
	Type     Type
	Sequence uint8
	Payload  []byte
}

// Encoder builds wire frames. Each direction of a link carries its own
// Encoder; sequence numbers count that direction's frames independently
// and wrap at 256.
type Encoder struct {
	mu  sync.Mutex
	seq uint8
}

// Encode frames payload as a frame of the given type and returns the
// escaped wire bytes along with the sequence number consumed.
func (e *Encoder) Encode(frameType Type, payload []byte) ([]byte, uint8, error) {
	if len(payload) > MaxPayload {
		return nil, 0, ErrPayloadTooLarge
	}
	e.mu.Lock()
	seq := e.seq
	e.seq++
	e.mu.Unlock()

	crc := Checksum(frameType, seq, payload)
	wire := make([]byte, 0, 1+headerLen+len(payload)+footerLen+4)
	wire = append(wire, SyncByte)
	wire = appendEscaped(wire, byte(frameType))
	wire = appendEscaped(wire, byte(len(payload)))
	wire = appendEscaped(wire, seq)
	for _, b := range payload {
		wire = appendEscaped(wire, b)
	}
	wire = appendEscaped(wire, byte(crc>>8))
	wire = appendEscaped(wire, byte(crc))
	return wire, seq, nil
}
