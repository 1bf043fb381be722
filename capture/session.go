package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usbshark/usbshark/link"
	"github.com/usbshark/usbshark/logging"
	"github.com/usbshark/usbshark/ringbuf"
	"github.com/usbshark/usbshark/usb"
)

// Session is the device-side capture context: the monitor configuration,
// capture state, timestamp clock, and the consumer loop that drains the
// ring, decodes packets, applies filters and reports matches over the
// link. It replaces what the original capture firmware kept in globals.
type Session struct {
	ring  *ringbuf.Buffer
	dec   *Decoder
	clock *Clock
	sess  *link.Session

	mu      sync.Mutex
	cfg     link.CaptureConfig
	running bool

	deviceCount   atomic.Uint32
	matched       atomic.Uint64
	filtered      atomic.Uint64
	malformed     atomic.Uint64
	lastOverflows uint32

	statusEvery time.Duration
	batchSize   int
	logger      *slog.Logger
}

type sessionOptions struct {
	statusEvery time.Duration
	batchSize   int
	timing      Timing
	speed       usb.Speed
	logger      *slog.Logger
}

type SessionOption func(*sessionOptions)

// WithStatusInterval sets the cadence of periodic StatusReports.
// Default is one second.
func WithStatusInterval(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		if d > 0 {
			o.statusEvery = d
		}
	}
}

// WithBatchSize bounds how many decoder events one loop iteration may
// drain before yielding to periodic duties.
func WithBatchSize(n int) SessionOption {
	return func(o *sessionOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithTiming(t Timing) SessionOption {
	return func(o *sessionOptions) { o.timing = t }
}

func WithSpeed(s usb.Speed) SessionOption {
	return func(o *sessionOptions) { o.speed = s }
}

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

const (
	defaultStatusInterval = time.Second
	defaultBatchSize      = 16
)

func NewSession(sess *link.Session, opts ...SessionOption) *Session {
	o := &sessionOptions{
		statusEvery: defaultStatusInterval,
		batchSize:   defaultBatchSize,
		timing:      DefaultTiming(),
		speed:       usb.FullSpeed,
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger, _ = logging.NewFromEnv()
	}

	ring := new(ringbuf.Buffer)
	clock := NewClock(o.speed)
	return &Session{
		ring:        ring,
		dec:         NewDecoder(ring, clock, o.timing),
		clock:       clock,
		sess:        sess,
		statusEvery: o.statusEvery,
		batchSize:   o.batchSize,
		logger:      o.logger,
	}
}

// Feed hands one line sample to the decoder. Producer side only; never
// blocks.
func (s *Session) Feed(sample Sample) {
	s.dec.Feed(sample)
}

// SetBusState records a device attach/detach observed by the sampling
// front end and reports the transition over the link.
func (s *Session) SetBusState(state link.DeviceState, speed usb.Speed) {
	switch state {
	case link.StateConnected:
		s.deviceCount.Store(1)
	case link.StateDisconnected:
		s.deviceCount.Store(0)
	}
	sc := link.StateChange{State: state, Speed: speed}
	payload, _ := sc.MarshalBinary()
	if err := s.sess.Send(link.TypeStateChange, payload); err != nil {
		s.logger.Warn("state change report failed", slog.Any("err", err))
	}
}

// Handler returns the link command handler for this session.
func (s *Session) Handler() link.Handler {
	return func(ctx context.Context, f link.Frame) error {
		switch f.Type {
		case link.TypeReset:
			return s.reset()
		case link.TypeStartCapture:
			return s.start(f.Payload)
		case link.TypeStopCapture:
			return s.stop()
		case link.TypeSetFilter, link.TypeSetConfig:
			return s.configure(f.Payload)
		case link.TypeGetStatus:
			return s.sendStatus()
		case link.TypeSetTimestamp:
			return s.setTimestamp(f.Payload)
		default:
			return &link.CommandError{Code: link.ErrCodeInvalidCommand}
		}
	}
}

func (s *Session) reset() error {
	s.mu.Lock()
	s.running = false
	s.cfg = link.CaptureConfig{}
	s.mu.Unlock()

	s.ring.Reset()
	s.matched.Store(0)
	s.filtered.Store(0)
	s.malformed.Store(0)
	s.logger.Info("capture engine reset")
	return nil
}

func (s *Session) start(payload []byte) error {
	cfg, err := link.DecodeCaptureConfig(payload)
	if err != nil {
		return &link.CommandError{Code: link.ErrCodeInvalidCommand}
	}

	s.mu.Lock()
	s.cfg = cfg
	s.running = true
	s.mu.Unlock()

	s.logger.Info("capture started",
		slog.String("speed", cfg.Speed.String()),
		slog.Int("addrFilter", int(cfg.AddressFilter)),
		slog.Int("epFilter", int(cfg.EndpointFilter)))
	return nil
}

func (s *Session) stop() error {
	s.mu.Lock()
	was := s.running
	s.running = false
	s.mu.Unlock()

	if was {
		s.logger.Info("capture stopped")
	}
	return nil
}

func (s *Session) configure(payload []byte) error {
	cfg, err := link.DecodeCaptureConfig(payload)
	if err != nil {
		return &link.CommandError{Code: link.ErrCodeInvalidCommand}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Session) setTimestamp(payload []byte) error {
	if len(payload) < 4 {
		return &link.CommandError{Code: link.ErrCodeInvalidCommand}
	}
	s.clock.Set(binary.BigEndian.Uint32(payload))
	return nil
}

// Running reports whether capture is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Counters exposes capture statistics for health reporting.
func (s *Session) Counters() (matched, filtered, malformed, overflows uint64) {
	return s.matched.Load(), s.filtered.Load(), s.malformed.Load(), uint64(s.ring.Overflows())
}

func (s *Session) status() link.StatusReport {
	state := link.CaptureIdle
	if s.Running() {
		state = link.CaptureRunning
	}
	return link.StatusReport{
		DeviceCount:  uint8(s.deviceCount.Load()),
		CaptureState: state,
		BufferUsage:  uint16(s.ring.Len()),
	}
}

func (s *Session) sendStatus() error {
	payload, _ := s.status().MarshalBinary()
	if err := s.sess.Send(link.TypeStatusReport, payload); err != nil {
		return fmt.Errorf("status report: %w", err)
	}
	return nil
}

// Run drains decoder events, decodes and reports packets, and performs
// the periodic duties (status reports, overflow reports). It returns
// when ctx is canceled; any packet mid-decode is abandoned.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.statusEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-s.dec.Events():
			s.handleEvent(ev)
			// Drain a bounded batch so a burst cannot starve the
			// periodic duties.
		drain:
			for i := 1; i < s.batchSize; i++ {
				select {
				case ev := <-s.dec.Events():
					s.handleEvent(ev)
				default:
					break drain
				}
			}

		case <-ticker.C:
			if err := s.sendStatus(); err != nil {
				s.logger.Warn("periodic status failed", slog.Any("err", err))
			}
			s.reportOverflows()
		}
	}
}

func (s *Session) handleEvent(ev Event) {
	// Bytes of events dropped before this one precede its own bytes in
	// the ring; reclaim them first or every later pop would be shifted.
	if ev.Discard > 0 {
		s.popDiscard(ev.Discard)
		s.logger.Warn("discarded bytes of dropped events", slog.Int("count", ev.Discard))
	}

	switch ev.Kind {
	case EventBusReset:
		s.popDiscard(ev.Length)
		s.logger.Info("bus reset detected")
		s.SetBusState(link.StateReset, 0)

	case EventPacket:
		if ev.Truncated {
			s.popDiscard(ev.Length)
			s.logger.Debug("truncated packet dropped", slog.Int("len", ev.Length))
			return
		}
		raw := make([]byte, ev.Length)
		if n := s.ring.PopSlice(raw); n != ev.Length {
			// Ring and event stream disagree; drop what we got.
			s.logger.Warn("short ring read", slog.Int("want", ev.Length), slog.Int("got", n))
			return
		}
		s.handlePacket(raw, ev.Timestamp)
	}
}

func (s *Session) handlePacket(raw []byte, ts uint32) {
	pkt, ok := usb.DecodePacket(raw, ts)
	if !ok {
		s.malformed.Add(1)
		return
	}
	if !s.match(&pkt) {
		s.filtered.Add(1)
		return
	}
	s.matched.Add(1)
	if err := s.sess.Send(link.TypeUsbPacket, link.EncodeUsbPacket(&pkt)); err != nil {
		s.logger.Warn("packet report failed", slog.Any("err", err))
	}
}

// match applies the monitor filters to a decoded packet.
func (s *Session) match(pkt *usb.RawPacket) bool {
	s.mu.Lock()
	running, cfg := s.running, s.cfg
	s.mu.Unlock()

	if !running {
		return false
	}
	if cfg.AddressFilter != link.FilterOff && pkt.DeviceAddress != cfg.AddressFilter {
		return false
	}
	if cfg.EndpointFilter != link.FilterOff && pkt.Endpoint != cfg.EndpointFilter {
		return false
	}
	if cfg.FilterIn && pkt.PID == usb.PIDIn {
		return false
	}
	if cfg.FilterOut && (pkt.PID == usb.PIDOut || pkt.PID == usb.PIDSetup) {
		return false
	}
	return true
}

func (s *Session) popDiscard(n int) {
	for i := 0; i < n; i++ {
		if _, ok := s.ring.Pop(); !ok {
			return
		}
	}
}

func (s *Session) reportOverflows() {
	total := s.ring.Overflows()
	if total == s.lastOverflows {
		return
	}
	s.lastOverflows = total

	er := link.ErrorReport{Code: link.ErrCodeBufferOverflow, Context: uint8(total)}
	payload, _ := er.MarshalBinary()
	if err := s.sess.Send(link.TypeErrorReport, payload); err != nil {
		s.logger.Warn("overflow report failed", slog.Any("err", err))
	}
}
