package usb

// RawPacket is one captured USB packet. The variants are keyed by the PID
// class: token packets carry DeviceAddress/Endpoint, data packets carry
// Payload, handshake and special packets carry neither. SOF is the one
// token that carries its two raw payload bytes instead of address/endpoint
// (they encode the frame number). The flattened host-link record in package
// link is the only place both field groups appear together.
type RawPacket struct {
	PID       PID
	Timestamp uint32 // monotonic µs counter, wraps at 2^32
	CRCValid  bool

	DeviceAddress uint8 // token packets only, 0–127
	Endpoint      uint8 // token packets only, 0–15

	Payload []byte // data packets and SOF only, 0–1024 bytes
}

// Class returns the packet's PID class.
func (p *RawPacket) Class() Class { return Classify(p.PID) }

// DecodeToken extracts the device address and endpoint from the two bytes
// following a token PID: the address is the low 7 bits of the second byte,
// the endpoint combines bit 7 of the first byte with the low 3 bits of the
// second.
func DecodeToken(b0, b1 byte) (addr, endpoint uint8) {
	addr = b1 & 0x7F
	endpoint = (b1&0x07)<<1 | (b0&0x80)>>7
	return addr, endpoint
}

// tokenBits assembles the 11 checksummed bits of a token from its two bytes.
func tokenBits(b0, b1 byte) uint16 {
	return (uint16(b0) | uint16(b1)<<8) & 0x07FF
}

// Minimum on-wire lengths per class, PID byte included. Anything shorter is
// line noise and is discarded before it reaches a consumer.
func minLength(c Class) int {
	switch c {
	case ClassToken:
		return 3
	case ClassData:
		return 3 // PID + CRC16, zero-length payload
	case ClassHandshake, ClassSpecial:
		return 1
	default:
		return 0
	}
}

// DecodePacket validates and decodes one raw packet (PID byte first).
// ok is false for unknown PIDs and for packets shorter than their class
// requires. A failed checksum does not reject the packet: it is returned
// with CRCValid=false so bus errors stay visible.
func DecodePacket(raw []byte, timestamp uint32) (RawPacket, bool) {
	if len(raw) < 1 {
		return RawPacket{}, false
	}

	pid := PID(raw[0])
	class := Classify(pid)
	if class == ClassUnknown {
		return RawPacket{}, false
	}
	if len(raw) < minLength(class) {
		return RawPacket{}, false
	}

	pkt := RawPacket{PID: pid, Timestamp: timestamp}

	switch class {
	case ClassToken:
		pkt.CRCValid = CRC5(tokenBits(raw[1], raw[2])) == raw[2]>>3
		if pid == PIDSOF {
			pkt.Payload = append([]byte(nil), raw[1:3]...)
		} else {
			pkt.DeviceAddress, pkt.Endpoint = DecodeToken(raw[1], raw[2])
		}

	case ClassData:
		payload := raw[1 : len(raw)-2]
		if len(payload) > MaxPayload {
			return RawPacket{}, false
		}
		if len(payload) == 0 {
			pkt.CRCValid = true
		} else {
			pkt.Payload = append([]byte(nil), payload...)
			wire := uint16(raw[len(raw)-1])<<8 | uint16(raw[len(raw)-2])
			pkt.CRCValid = CRC16(pkt.Payload) == wire
		}

	case ClassHandshake, ClassSpecial:
		pkt.CRCValid = true
	}

	return pkt, true
}

// MaxPayload is the empirical cap on a data packet payload.
const MaxPayload = 1024

// SOFFrameNumber decodes the 11-bit frame number carried by a SOF packet.
// ok is false when the packet is not a SOF or lacks its two payload bytes.
func SOFFrameNumber(p *RawPacket) (uint16, bool) {
	if p.PID != PIDSOF || len(p.Payload) < 2 {
		return 0, false
	}
	return (uint16(p.Payload[0]) | uint16(p.Payload[1])<<8) & 0x07FF, true
}
