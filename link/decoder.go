package link

type rxState uint8

const (
	stateWaitSync rxState = iota
	stateType
	stateLength
	stateSequence
	stateData
	stateCrcHigh
	stateCrcLow
)

// Result is one outcome produced by the Decoder: either a verified frame
// (Err nil) or a frame whose checksum did not match (Err is
// ErrChecksumMismatch; Frame still carries the received sequence so the
// caller can Nack it).
type Result struct {
	Frame Frame
	Err   error
}

// Decoder is the receive-side frame state machine. It is re-entrant
// across Feed calls: a frame may arrive split at any byte, including in
// the middle of an escape sequence. Bytes outside a frame are discarded
// until the next sync byte.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state   rxState
	escaped bool

	frameType Type
	length    uint8
	sequence  uint8
	data      []byte
	crc       uint16
}

// Feed consumes p and returns the results completed by it, in order.
func (d *Decoder) Feed(p []byte) []Result {
	var results []Result
	for _, b := range p {
		if r, ok := d.feedByte(b); ok {
			results = append(results, r)
		}
	}
	return results
}

func (d *Decoder) feedByte(b byte) (Result, bool) {
	// The sync byte is never escaped, so escape resolution comes first
	// and applies uniformly to every later field.
	unescaped := b
	if d.escaped {
		unescaped = b ^ 0xFF
		d.escaped = false
	} else if b == EscapeByte {
		d.escaped = true
		return Result{}, false
	}

	switch d.state {
	case stateWaitSync:
		if b == SyncByte {
			d.state = stateType
		}

	case stateType:
		d.frameType = Type(unescaped)
		d.state = stateLength

	case stateLength:
		d.length = unescaped
		d.data = d.data[:0]
		d.state = stateSequence

	case stateSequence:
		d.sequence = unescaped
		if d.length > 0 {
			d.state = stateData
		} else {
			d.state = stateCrcHigh
		}

	case stateData:
		d.data = append(d.data, unescaped)
		if len(d.data) >= int(d.length) {
			d.state = stateCrcHigh
		}

	case stateCrcHigh:
		d.crc = uint16(unescaped) << 8
		d.state = stateCrcLow

	case stateCrcLow:
		d.crc |= uint16(unescaped)
		d.state = stateWaitSync
		return d.finish(), true
	}
	return Result{}, false
}

func (d *Decoder) finish() Result {
	frame := Frame{
		Type:     d.frameType,
		Sequence: d.sequence,
		Payload:  append([]byte(nil), d.data...),
	}
	if Checksum(d.frameType, d.sequence, d.data) != d.crc {
		return Result{Frame: frame, Err: ErrChecksumMismatch}
	}
	return Result{Frame: frame}
}

// Reset discards any partially received frame.
func (d *Decoder) Reset() {
	d.state = stateWaitSync
	d.escaped = false
	d.data = d.data[:0]
}
