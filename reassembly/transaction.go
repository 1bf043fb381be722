// Package reassembly groups decoded USB packets into transactions:
// token + data + handshake sequences, singleton start-of-frame markers,
// and the human-readable descriptions attached to each.
package reassembly

import (
	"fmt"

	"github.com/usbshark/usbshark/usb"
)

// Kind is the transaction variant, fixed by the starting token.
type Kind uint8

const (
	KindControlSetup Kind = iota
	KindIn
	KindOut
	KindPing
	KindStartOfFrame
	// KindGeneric covers transactions opened by a token PID with no
	// dedicated variant.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindControlSetup:
		return "ControlSetup"
	case KindIn:
		return "In"
	case KindOut:
		return "Out"
	case KindPing:
		return "Ping"
	case KindStartOfFrame:
		return "StartOfFrame"
	default:
		return "Generic"
	}
}

// Status is derived from a transaction's final handshake.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusNotReady
	StatusStalled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotReady:
		return "Not Ready"
	case StatusStalled:
		return "Error: Stalled"
	default:
		return ""
	}
}

// Transaction is one reconstructed bus transaction. Packets are in
// arrival order; the first is always the opening token (or the lone SOF).
type Transaction struct {
	Kind    Kind
	Packets []usb.RawPacket

	DeviceAddress uint8
	Endpoint      uint8  // meaningless for StartOfFrame
	FrameNumber   uint16 // StartOfFrame only

	Status      Status
	Description string
	Timestamp   uint32 // of the first packet

	// Incomplete marks a transaction that was flushed by a new token or
	// end of input rather than closed by its own completion rule.
	Incomplete bool
}

func (t *Transaction) describeOpen(pid usb.PID) {
	switch t.Kind {
	case KindControlSetup:
		t.Description = "Control Setup"
	case KindIn:
		t.Description = "IN Transaction"
	case KindOut:
		t.Description = "OUT Transaction"
	case KindPing:
		t.Description = "PING Transaction"
	default:
		t.Description = fmt.Sprintf("%s Transaction", pid)
	}
}
