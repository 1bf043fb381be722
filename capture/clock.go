package capture

import (
	"sync/atomic"

	"github.com/usbshark/usbshark/usb"
)

// Nominal bit period per speed, in nanoseconds.
const (
	lowSpeedPeriodNs  = 667 // 1.5 Mbit/s
	fullSpeedPeriodNs = 83  // 12 Mbit/s
)

// Clock is the capture timestamp counter: microseconds since capture
// start, advanced by observed bit periods, wrapping at 2^32. SetTimestamp
// rebases it without disturbing the running accumulation.
type Clock struct {
	periodNs uint64
	ns       atomic.Uint64
	base     atomic.Uint32
}

func NewClock(speed usb.Speed) *Clock {
	c := &Clock{periodNs: fullSpeedPeriodNs}
	if speed == usb.LowSpeed {
		c.periodNs = lowSpeedPeriodNs
	}
	return c
}

// Advance accounts for n elapsed bit periods.
func (c *Clock) Advance(n uint32) {
	c.ns.Add(uint64(n) * c.periodNs)
}

// Now returns the current timestamp in microseconds. Wraps at 2^32 like
// the wire format it feeds.
func (c *Clock) Now() uint32 {
	return uint32(c.ns.Load()/1000) + c.base.Load()
}

// Set rebases the clock so Now() reads us.
func (c *Clock) Set(us uint32) {
	c.base.Store(us - uint32(c.ns.Load()/1000))
}
