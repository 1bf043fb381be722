package usb

import (
	"bytes"
	"testing"
)

// tokenBytes builds the two bytes after a token PID so that the embedded
// CRC5 verifies.
func tokenBytes(b0 byte, low3 byte) (byte, byte) {
	b1 := low3 & 0x07
	crc := CRC5(tokenBits(b0, b1))
	return b0, b1 | crc<<3
}

// dataBytes builds a full data packet: PID, payload, CRC16 (low byte first).
func dataBytes(pid PID, payload []byte) []byte {
	raw := append([]byte{byte(pid)}, payload...)
	crc := CRC16(payload)
	return append(raw, byte(crc), byte(crc>>8))
}

func TestClassifyClosedSet(t *testing.T) {
	tests := []struct {
		pid  PID
		want Class
	}{
		{PIDOut, ClassToken},
		{PIDIn, ClassToken},
		{PIDSetup, ClassToken},
		{PIDSOF, ClassToken},
		{PIDPing, ClassToken},
		{PIDData0, ClassData},
		{PIDData1, ClassData},
		{PIDAck, ClassHandshake},
		{PIDNak, ClassHandshake},
		{PIDStall, ClassHandshake},
		{PIDNyet, ClassHandshake},
		{PIDPre, ClassSpecial},
		{PIDSplit, ClassSpecial},
		{PID(0x00), ClassUnknown},
		{PID(0x42), ClassUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.pid); got != tt.want {
			t.Errorf("Classify(%s %#02x) = %v, want %v", tt.pid, byte(tt.pid), got, tt.want)
		}
	}
}

func TestDecodeToken(t *testing.T) {
	// address is the low 7 bits of the second byte; the endpoint combines
	// bit 7 of the first byte with the low 3 bits of the second
	addr, ep := DecodeToken(0x80, 0x05)
	if addr != 0x05 {
		t.Errorf("addr = %d, want 5", addr)
	}
	if ep != (0x05&0x07)<<1|1 {
		t.Errorf("ep = %d, want %d", ep, (0x05&0x07)<<1|1)
	}

	addr, ep = DecodeToken(0x00, 0xFF)
	if addr != 0x7F {
		t.Errorf("addr = %d, want 127", addr)
	}
	if ep != (0x07)<<1 {
		t.Errorf("ep = %d, want %d", ep, 0x07<<1)
	}
}

func TestDecodePacketToken(t *testing.T) {
	b0, b1 := tokenBytes(0x00, 0x03)
	pkt, ok := DecodePacket([]byte{byte(PIDIn), b0, b1}, 42)
	if !ok {
		t.Fatal("token rejected")
	}
	if pkt.PID != PIDIn || pkt.Timestamp != 42 {
		t.Fatalf("pkt = %+v", pkt)
	}
	if !pkt.CRCValid {
		t.Error("valid CRC5 not recognised")
	}
	wantAddr, wantEP := DecodeToken(b0, b1)
	if pkt.DeviceAddress != wantAddr || pkt.Endpoint != wantEP {
		t.Errorf("addr/ep = %d/%d, want %d/%d", pkt.DeviceAddress, pkt.Endpoint, wantAddr, wantEP)
	}

	// corrupt the CRC bits: packet survives with CRCValid=false
	pkt, ok = DecodePacket([]byte{byte(PIDIn), b0, b1 ^ 0x80}, 0)
	if !ok {
		t.Fatal("token with bad CRC must still decode")
	}
	if pkt.CRCValid {
		t.Error("corrupted CRC5 reported valid")
	}
}

func TestDecodePacketData(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	pkt, ok := DecodePacket(dataBytes(PIDData0, payload), 7)
	if !ok {
		t.Fatal("data packet rejected")
	}
	if !pkt.CRCValid {
		t.Error("valid CRC16 not recognised")
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("payload = %x, want %x", pkt.Payload, payload)
	}

	// flip a payload bit: packet kept, CRCValid cleared
	raw := dataBytes(PIDData1, payload)
	raw[2] ^= 0x01
	pkt, ok = DecodePacket(raw, 0)
	if !ok {
		t.Fatal("corrupted data packet must still decode")
	}
	if pkt.CRCValid {
		t.Error("corrupted CRC16 reported valid")
	}

	// zero-length data packet is valid by definition
	pkt, ok = DecodePacket([]byte{byte(PIDData0), 0x00, 0x00}, 0)
	if !ok || !pkt.CRCValid || len(pkt.Payload) != 0 {
		t.Errorf("zero-length data packet: ok=%v crc=%v payload=%x", ok, pkt.CRCValid, pkt.Payload)
	}
}

func TestDecodePacketHandshake(t *testing.T) {
	for _, pid := range []PID{PIDAck, PIDNak, PIDStall, PIDNyet} {
		pkt, ok := DecodePacket([]byte{byte(pid)}, 1)
		if !ok {
			t.Fatalf("%s rejected", pid)
		}
		if !pkt.CRCValid || pkt.Payload != nil {
			t.Errorf("%s: crc=%v payload=%x", pid, pkt.CRCValid, pkt.Payload)
		}
	}
}

func TestDecodePacketShortAndUnknown(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"token too short", []byte{byte(PIDSetup), 0x00}},
		{"data too short", []byte{byte(PIDData0), 0x00}},
		{"unknown pid", []byte{0x11, 0x22, 0x33}},
	}
	for _, tt := range tests {
		if _, ok := DecodePacket(tt.raw, 0); ok {
			t.Errorf("%s: decode succeeded", tt.name)
		}
	}
}

func TestSOFFrameNumber(t *testing.T) {
	pkt, ok := DecodePacket([]byte{byte(PIDSOF), 0x34, 0x02}, 0)
	if !ok {
		t.Fatal("SOF rejected")
	}
	n, ok := SOFFrameNumber(&pkt)
	if !ok || n != 564 {
		t.Fatalf("frame number = %d,%v, want 564,true", n, ok)
	}

	in := RawPacket{PID: PIDIn}
	if _, ok := SOFFrameNumber(&in); ok {
		t.Error("non-SOF packet yielded a frame number")
	}
}
