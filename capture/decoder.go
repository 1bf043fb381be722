// Package capture turns sampled D+/D- line states into raw USB packets:
// NRZI bit extraction, SYNC detection, byte assembly into the capture
// ring, EOP and bus-reset timing, and the capture session that filters
// decoded packets and reports them over the link.
package capture

import (
	"sync/atomic"

	"github.com/usbshark/usbshark/ringbuf"
)

// Sample is one observed line state and how many nominal bit periods it
// persisted. The sampling front end guarantees at least one period.
type Sample struct {
	DPlus   bool
	DMinus  bool
	Periods uint32
}

// Timing holds the idle-duration thresholds, in nominal bit periods.
// These are calibrated configuration, not derived constants: their
// correct values depend on the sampling front end's timing resolution.
type Timing struct {
	// EOPIdlePeriods of continuous SE0 end the in-flight packet.
	EOPIdlePeriods uint32
	// ResetIdlePeriods of continuous SE0 signal a bus reset. An order of
	// magnitude above EOP.
	ResetIdlePeriods uint32
}

// DefaultTiming returns the calibration used with the stock sampling
// front end.
func DefaultTiming() Timing {
	return Timing{EOPIdlePeriods: 3, ResetIdlePeriods: 30}
}

// EventKind discriminates decoder events.
type EventKind uint8

const (
	// EventPacket marks a completed packet boundary: Length bytes of it
	// sit contiguously in the ring.
	EventPacket EventKind = iota
	// EventBusReset reports a bus reset. Length bytes of an abandoned
	// partial packet may still sit in the ring and must be discarded.
	EventBusReset
)

// Event is a packet boundary or bus-reset notification. Events only
// carry metadata; packet bytes travel through the ring.
type Event struct {
	Kind      EventKind
	Length    int    // bytes this event accounts for in the ring
	Timestamp uint32 // µs, taken at packet start (packet) or detection (reset)
	Truncated bool   // the ring rejected at least one byte of this packet

	// Discard counts ring bytes belonging to events that were dropped
	// between the previous delivered event and this one. Those bytes sit
	// in the ring immediately before this event's own bytes, so the
	// consumer must pop and drop them first.
	Discard int
}

type decodeState uint8

const (
	stateWaitSync decodeState = iota
	stateAccumSync
	stateInPacket
)

const syncZeroBits = 7 // the SYNC marker is seven NRZI zeros then a one

// Decoder is the line decoder. Feed runs on the sampling goroutine and
// never blocks: bytes go into the SPSC ring, boundary events into a
// bounded channel with drop-on-full. Byte counts of dropped events ride
// as discard credit on the next event that does get through, so the
// consumer reclaims them in ring order and never misaligns.
type Decoder struct {
	ring   *ringbuf.Buffer
	timing Timing
	clock  *Clock

	events         chan Event
	droppedEvents  atomic.Uint64
	pendingDiscard int

	state     decodeState
	syncCount uint32

	prevDPlus  bool
	prevDMinus bool

	cur       byte
	curBits   uint8
	pktLen    int
	pktStart  uint32
	truncated bool

	idlePeriods uint32
	resetSent   bool
}

const defaultEventBuffer = 64

func NewDecoder(ring *ringbuf.Buffer, clock *Clock, timing Timing) *Decoder {
	return &Decoder{
		ring:   ring,
		timing: timing,
		clock:  clock,
		events: make(chan Event, defaultEventBuffer),
	}
}

// Events delivers packet boundaries and bus resets to the consumer.
func (d *Decoder) Events() <-chan Event {
	return d.events
}

// DroppedEvents returns how many events were discarded because the
// consumer fell behind.
func (d *Decoder) DroppedEvents() uint64 {
	return d.droppedEvents.Load()
}

// Feed consumes one line sample. Runs on the producer side only.
func (d *Decoder) Feed(s Sample) {
	d.clock.Advance(s.Periods)

	if !s.DPlus && !s.DMinus {
		d.idlePeriods += s.Periods
		if d.idlePeriods >= d.timing.ResetIdlePeriods {
			if !d.resetSent {
				d.busReset()
			}
			return
		}
		if d.idlePeriods >= d.timing.EOPIdlePeriods && d.state == stateInPacket {
			d.flushPacket()
		}
		return
	}

	wasIdle := d.idlePeriods > 0
	d.idlePeriods = 0
	d.resetSent = false

	// NRZI: a transition decodes to 0, a held level to 1. A sample is a
	// single held level, so only its first period can be a transition.
	transition := s.DPlus != d.prevDPlus || s.DMinus != d.prevDMinus
	d.prevDPlus, d.prevDMinus = s.DPlus, s.DMinus

	if wasIdle {
		// Leaving idle: the first driven period has no meaningful
		// predecessor level. Treat it as the start of SYNC hunting.
		d.feedBit(0)
	} else if transition {
		d.feedBit(0)
	} else {
		d.feedBit(1)
	}
	for i := uint32(1); i < s.Periods; i++ {
		d.feedBit(1)
	}
}

func (d *Decoder) feedBit(bit byte) {
	switch d.state {
	case stateWaitSync:
		if bit == 0 {
			d.state = stateAccumSync
			d.syncCount = 1
		}

	case stateAccumSync:
		if bit == 0 {
			if d.syncCount < syncZeroBits {
				d.syncCount++
			}
			return
		}
		if d.syncCount >= syncZeroBits {
			d.beginPacket()
		} else {
			d.state = stateWaitSync
		}

	case stateInPacket:
		d.cur |= bit << d.curBits
		d.curBits++
		if d.curBits == 8 {
			if d.ring.Push(d.cur) {
				d.pktLen++
			} else {
				d.truncated = true
			}
			d.cur = 0
			d.curBits = 0
		}
	}
}

func (d *Decoder) beginPacket() {
	d.state = stateInPacket
	d.syncCount = 0
	d.cur = 0
	d.curBits = 0
	d.pktLen = 0
	d.truncated = false
	d.pktStart = d.clock.Now()
}

func (d *Decoder) flushPacket() {
	length, truncated := d.pktLen, d.truncated
	d.resetAccum()
	if length == 0 && !truncated {
		return
	}
	d.emit(Event{Kind: EventPacket, Length: length, Timestamp: d.pktStart, Truncated: truncated})
}

func (d *Decoder) busReset() {
	length := 0
	if d.state == stateInPacket {
		length = d.pktLen
	}
	d.resetAccum()
	d.resetSent = true
	d.emit(Event{Kind: EventBusReset, Length: length, Timestamp: d.clock.Now()})
}

func (d *Decoder) resetAccum() {
	d.state = stateWaitSync
	d.syncCount = 0
	d.cur = 0
	d.curBits = 0
	d.pktLen = 0
	d.truncated = false
}

func (d *Decoder) emit(ev Event) {
	ev.Discard = d.pendingDiscard
	select {
	case d.events <- ev:
		d.pendingDiscard = 0
	default:
		// Consumer behind: the event is lost, but its ring bytes sit
		// behind those of the events still queued. Crediting them to the
		// next delivered event keeps the reclaim in ring order; a global
		// counter applied early would discard the wrong packet's bytes.
		d.droppedEvents.Add(1)
		d.pendingDiscard += ev.Length
	}
}
