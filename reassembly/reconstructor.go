package reassembly

import (
	"fmt"

	"github.com/usbshark/usbshark/usb"
)

// Reconstructor folds the decoded packet stream into transactions. At
// most one transaction is pending at a time: a new token implicitly
// terminates whatever was pending, which keeps the reassembler robust
// against dropped handshakes without lookahead.
//
// Not safe for concurrent use; feed it from a single goroutine.
type Reconstructor struct {
	pending *Transaction
}

func New() *Reconstructor {
	return &Reconstructor{}
}

// Feed consumes one packet and returns any transactions it closed, in
// emission order.
func (r *Reconstructor) Feed(pkt usb.RawPacket) []Transaction {
	// SOF never joins and never disturbs the pending transaction.
	if pkt.PID == usb.PIDSOF {
		return []Transaction{r.startOfFrame(pkt)}
	}

	var out []Transaction
	if r.pending == nil || pkt.Class() == usb.ClassToken {
		if flushed, ok := r.flushIncomplete(); ok {
			out = append(out, flushed)
		}
		r.begin(pkt)
	} else {
		r.pending.Packets = append(r.pending.Packets, pkt)
	}

	if r.pendingComplete() {
		out = append(out, r.finish())
	}
	return out
}

// Flush closes out a pending transaction at end of input. Incomplete
// transactions are flushed exactly once.
func (r *Reconstructor) Flush() []Transaction {
	if flushed, ok := r.flushIncomplete(); ok {
		return []Transaction{flushed}
	}
	return nil
}

func (r *Reconstructor) startOfFrame(pkt usb.RawPacket) Transaction {
	t := Transaction{
		Kind:      KindStartOfFrame,
		Packets:   []usb.RawPacket{pkt},
		Timestamp: pkt.Timestamp,
	}
	if n, ok := usb.SOFFrameNumber(&pkt); ok {
		t.FrameNumber = n
	}
	t.Description = fmt.Sprintf("Start of Frame %d", t.FrameNumber)
	return t
}

func (r *Reconstructor) begin(pkt usb.RawPacket) {
	t := &Transaction{
		Packets:       []usb.RawPacket{pkt},
		DeviceAddress: pkt.DeviceAddress,
		Endpoint:      pkt.Endpoint,
		Timestamp:     pkt.Timestamp,
	}
	switch pkt.PID {
	case usb.PIDSetup:
		t.Kind = KindControlSetup
	case usb.PIDIn:
		t.Kind = KindIn
	case usb.PIDOut:
		t.Kind = KindOut
	case usb.PIDPing:
		t.Kind = KindPing
	default:
		t.Kind = KindGeneric
	}
	t.describeOpen(pkt.PID)
	r.pending = t
}

// pendingComplete applies the per-kind completion rules to the pending
// transaction.
func (r *Reconstructor) pendingComplete() bool {
	t := r.pending
	if t == nil {
		return false
	}
	n := len(t.Packets)
	last := &t.Packets[n-1]

	// A handshake closes any transaction unconditionally.
	if last.Class() == usb.ClassHandshake {
		return true
	}

	switch t.Kind {
	case KindControlSetup:
		// With a DATA0 data stage a third packet is required; the 3+
		// floor also catches degenerate sequences without one.
		return n >= 3
	case KindIn:
		// An IN whose second packet is data stays open for the host's
		// handshake: status derives from that final ACK, so it belongs to
		// this transaction rather than opening a new one. Only a non-data
		// reply (the device NAKing or stalling) closes at two packets.
		if n >= 2 && t.Packets[1].Class() == usb.ClassData {
			return n >= 3
		}
		return n >= 2
	case KindOut:
		return n >= 3
	default:
		// Ping and generic transactions wait for their handshake.
		return false
	}
}

// finish closes the pending transaction: derives status from the final
// handshake and rewrites ControlSetup descriptions from the decoded
// setup stage.
func (r *Reconstructor) finish() Transaction {
	t := r.pending
	r.pending = nil

	switch t.Packets[len(t.Packets)-1].PID {
	case usb.PIDAck:
		t.Status = StatusSuccess
	case usb.PIDNak:
		t.Status = StatusNotReady
	case usb.PIDStall:
		t.Status = StatusStalled
	}

	if t.Kind == KindControlSetup {
		if setup, ok := t.setupStage(); ok {
			t.Description = fmt.Sprintf("%s (%s)", setup.RequestName, setup.Type)
			if setup.RequestDetails != "" {
				t.Description += ": " + setup.RequestDetails
			}
		}
	}
	return *t
}

func (r *Reconstructor) flushIncomplete() (Transaction, bool) {
	t := r.pending
	if t == nil {
		return Transaction{}, false
	}
	r.pending = nil
	t.Incomplete = true
	t.Description += " (incomplete)"
	return *t, true
}

// setupStage finds and decodes the DATA0 setup payload of a control
// transaction.
func (t *Transaction) setupStage() (usb.Setup, bool) {
	for i := range t.Packets {
		p := &t.Packets[i]
		if p.PID == usb.PIDData0 && len(p.Payload) >= 8 {
			return usb.DecodeSetup(p.Payload)
		}
	}
	return usb.Setup{}, false
}
