// Package usb decodes raw USB packets captured off the wire: PID
// classification, token/setup/descriptor field extraction, and the two USB
// checksums (CRC5 for tokens, CRC16 for data payloads).
//
// Everything here is stateless. Decode functions report malformed input by
// returning ok=false; they never panic and never drop a packet on a CRC
// mismatch alone (bus errors are data worth showing, not exceptions).
package usb

// PID is a full USB packet identifier byte, check nibble included.
type PID byte

const (
	PIDOut   PID = 0xE1
	PIDIn    PID = 0x69
	PIDSOF   PID = 0xA5
	PIDSetup PID = 0x2D
	PIDPing  PID = 0xB4

	PIDData0 PID = 0xC3
	PIDData1 PID = 0x4B
	PIDData2 PID = 0x87
	PIDMData PID = 0x0F

	PIDAck   PID = 0xD2
	PIDNak   PID = 0x5A
	PIDStall PID = 0x1E
	PIDNyet  PID = 0x96

	PIDPre      PID = 0x3C // shares the value with ERR
	PIDSplit    PID = 0x78
	PIDReserved PID = 0xF0
)

// Class partitions the PID space. Every consumer switches over these values
// rather than re-deriving membership from PID bits.
type Class int

const (
	ClassUnknown Class = iota
	ClassToken
	ClassData
	ClassHandshake
	ClassSpecial
)

// Closed membership tables. PING initiates a transaction and carries
// address/endpoint, so it classifies as a token.
var pidClasses = map[PID]Class{
	PIDOut:   ClassToken,
	PIDIn:    ClassToken,
	PIDSOF:   ClassToken,
	PIDSetup: ClassToken,
	PIDPing:  ClassToken,

	PIDData0: ClassData,
	PIDData1: ClassData,
	PIDData2: ClassData,
	PIDMData: ClassData,

	PIDAck:   ClassHandshake,
	PIDNak:   ClassHandshake,
	PIDStall: ClassHandshake,
	PIDNyet:  ClassHandshake,

	PIDPre:      ClassSpecial,
	PIDSplit:    ClassSpecial,
	PIDReserved: ClassSpecial,
}

var pidNames = map[PID]string{
	PIDOut:      "OUT",
	PIDIn:       "IN",
	PIDSOF:      "SOF",
	PIDSetup:    "SETUP",
	PIDPing:     "PING",
	PIDData0:    "DATA0",
	PIDData1:    "DATA1",
	PIDData2:    "DATA2",
	PIDMData:    "MDATA",
	PIDAck:      "ACK",
	PIDNak:      "NAK",
	PIDStall:    "STALL",
	PIDNyet:     "NYET",
	PIDPre:      "PRE",
	PIDSplit:    "SPLIT",
	PIDReserved: "RESERVED",
}

// Classify returns the packet class for a PID, or ClassUnknown for values
// outside the closed set.
func Classify(pid PID) Class {
	return pidClasses[pid]
}

func (p PID) Class() Class { return Classify(p) }

func (p PID) String() string {
	if name, ok := pidNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

func (c Class) String() string {
	switch c {
	case ClassToken:
		return "token"
	case ClassData:
		return "data"
	case ClassHandshake:
		return "handshake"
	case ClassSpecial:
		return "special"
	default:
		return "unknown"
	}
}
