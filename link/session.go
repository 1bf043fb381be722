package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/usbshark/usbshark/logging"
)

// Optional capabilities (used via type assertions).
type ReadContexter interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

type WriteContexter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Handler executes a received command frame. A nil return sends Ack; a
// *CommandError return sends Nack with its code; any other error sends
// Nack with ErrCodeInternal.
type Handler func(ctx context.Context, frame Frame) error

type options struct {
	handler   Handler
	logger    *slog.Logger
	reportBuf int
}

type Option func(*options)

func WithHandler(h Handler) Option {
	return func(o *options) { o.handler = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReportBuffer sets the capacity of the Reports channel. Default is
// 256. When the consumer falls behind, further reports are dropped.
func WithReportBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.reportBuf = n
		}
	}
}

const (
	defaultReportBuffer = 256
	readBufferSize      = 512

	// Backoff constants for retry loops
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 1 * time.Second
	backoffFactor  = 2

	// Maximum consecutive errors before giving up
	maxConsecutiveErrors = 10

	// Stop timeout: maximum time to wait for clean shutdown
	stopTimeout = 5 * time.Second
)

// Session runs one end of a link over a byte stream (a serial port, a
// USB CDC endpoint, or a pipe in tests). It frames outbound traffic,
// decodes inbound bytes, correlates Ack/Nack with pending commands by
// sequence number, dispatches received commands to a Handler, and
// delivers data reports on Reports.
type Session struct {
	rw io.ReadWriter

	enc     Encoder
	waiters waiterMap
	handler Handler

	writeChan chan []byte
	reports   chan Frame

	droppedReports atomic.Uint64

	logger *slog.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	readLoopDone   <-chan struct{}
	writerLoopDone <-chan struct{}

	// done closes when either loop exits (signals the session is no
	// longer healthy)
	done chan struct{}
}

func NewSession(rw io.ReadWriter, opts ...Option) *Session {
	o := &options{reportBuf: defaultReportBuffer}
	for _, fn := range opts {
		fn(o)
	}

	if o.logger == nil {
		o.logger, _ = logging.NewFromEnv()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		rw:      rw,
		handler: o.handler,
		logger:  o.logger,

		writeChan: make(chan []byte, 32),
		reports:   make(chan Frame, o.reportBuf),

		ctx:    ctx,
		cancel: cancel,
	}

	s.done = make(chan struct{})
	s.readLoopDone = s.readLoop()
	s.writerLoopDone = s.writerLoop()

	// Monitor for loop exits and signal done
	go func() {
		select {
		case <-s.readLoopDone:
			s.logger.Warn("read loop exited, session unhealthy")
		case <-s.writerLoopDone:
			s.logger.Warn("write loop exited, session unhealthy")
		case <-s.ctx.Done():
			// Normal shutdown, don't signal unhealthy
			return
		}
		close(s.done)
	}()

	return s
}

// Done returns a channel that closes when the session becomes unhealthy
// (i.e., when a critical loop exits unexpectedly).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Reports delivers received data report frames. Commands and Ack/Nack
// never appear here.
func (s *Session) Reports() <-chan Frame {
	return s.reports
}

// DroppedReports returns the number of reports discarded because the
// Reports channel was full.
func (s *Session) DroppedReports() uint64 {
	return s.droppedReports.Load()
}

// Send queues a frame without waiting for acknowledgment. Reports and
// Ack/Nack are sent this way.
func (s *Session) Send(frameType Type, payload []byte) error {
	wire, seq, err := s.enc.Encode(frameType, payload)
	if err != nil {
		return err
	}
	s.logger.Debug("tx", slog.String("type", frameType.String()), slog.Int("seq", int(seq)), slog.Int("size", len(payload)))
	return s.queue(s.ctx, wire)
}

// Command sends a command frame and waits for the matching Ack or Nack.
// A Nack is returned as a *RemoteError.
func (s *Session) Command(ctx context.Context, frameType Type, payload []byte) error {
	wire, seq, err := s.enc.Encode(frameType, payload)
	if err != nil {
		return err
	}

	ch := s.waiters.NewWaiter(seq)
	s.logger.Debug("tx cmd", slog.String("type", frameType.String()), slog.Int("seq", int(seq)), slog.Int("size", len(payload)))

	if err := s.queue(ctx, wire); err != nil {
		s.waiters.Delete(seq)
		return err
	}

	select {
	case code := <-ch:
		if code != ErrCodeNone {
			return &RemoteError{Sequence: seq, Code: code}
		}
		return nil
	case <-ctx.Done():
		s.waiters.Delete(seq)
		return ctx.Err()
	case <-s.ctx.Done():
		s.waiters.Delete(seq)
		return ErrSessionClosed
	}
}

func (s *Session) queue(ctx context.Context, wire []byte) error {
	select {
	case s.writeChan <- wire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
		return ErrWriterBacklog
	}
}

func (s *Session) writerLoop() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		backoff := initialBackoff
		consecutiveErrors := 0

		for {
			var data []byte
			select {
			case data = <-s.writeChan:
			case <-s.ctx.Done():
				return
			}

			for {
				select {
				case <-s.ctx.Done():
					return
				default:
				}

				if _, err := s.write(data); err != nil {
					consecutiveErrors++

					if consecutiveErrors >= maxConsecutiveErrors {
						s.logger.Error("write loop: too many consecutive errors, exiting",
							slog.Int("errors", consecutiveErrors),
							slog.Any("lastErr", err))
						return
					}

					if isFatal(err) {
						s.logger.Error("write loop: fatal error, exiting", slog.Any("err", err))
						return
					}

					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						s.logger.Debug("write loop: context done", slog.Any("err", err))
						return
					}

					s.logger.Debug("write error, backing off",
						slog.Any("err", err),
						slog.Duration("backoff", backoff),
						slog.Int("consecutiveErrors", consecutiveErrors))

					select {
					case <-time.After(backoff):
					case <-s.ctx.Done():
						return
					}

					backoff *= backoffFactor
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
					continue
				}
				// Success - reset backoff and error count
				backoff = initialBackoff
				consecutiveErrors = 0
				break
			}
		}
	}()
	return done
}

func (s *Session) write(p []byte) (int, error) {
	if wc, ok := s.rw.(WriteContexter); ok {
		return wc.WriteContext(s.ctx, p)
	}
	return s.rw.Write(p)
}

func (s *Session) read(p []byte) (int, error) {
	if rc, ok := s.rw.(ReadContexter); ok {
		return rc.ReadContext(s.ctx, p)
	}
	return s.rw.Read(p)
}

func (s *Session) readLoop() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var dec Decoder
		var buf [readBufferSize]byte
		backoff := initialBackoff
		consecutiveErrors := 0

		for {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			n, err := s.read(buf[:])
			if n > 0 {
				for _, r := range dec.Feed(buf[:n]) {
					s.dispatch(r)
				}
				// Reset backoff and error count on successful read
				backoff = initialBackoff
				consecutiveErrors = 0
			}

			if err != nil {
				consecutiveErrors++

				if consecutiveErrors >= maxConsecutiveErrors {
					s.logger.Error("read loop: too many consecutive errors, exiting",
						slog.Int("errors", consecutiveErrors),
						slog.Any("lastErr", err))
					return
				}

				if isFatal(err) {
					s.logger.Error("read loop: fatal error, exiting", slog.Any("err", err))
					return
				}

				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					s.logger.Debug("read loop: context done", slog.Any("err", err))
					return
				}

				s.logger.Debug("read error, backing off",
					slog.Any("err", err),
					slog.Duration("backoff", backoff),
					slog.Int("consecutiveErrors", consecutiveErrors))

				select {
				case <-time.After(backoff):
				case <-s.ctx.Done():
					return
				}

				backoff *= backoffFactor
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
		}
	}()
	return done
}

func (s *Session) dispatch(r Result) {
	if r.Err != nil {
		// Checksum mismatch: reject the frame by its received sequence
		// and let the decoder hunt for the next sync byte.
		s.logger.Debug("rx bad checksum", slog.Int("seq", int(r.Frame.Sequence)))
		_ = s.Send(TypeNack, nackPayload(r.Frame.Sequence, ErrCodeCrcFailure))
		return
	}

	f := r.Frame
	s.logger.Debug("rx", slog.String("type", f.Type.String()), slog.Int("seq", int(f.Sequence)), slog.Int("size", len(f.Payload)))

	switch {
	case f.Type == TypeAck:
		if len(f.Payload) < 1 {
			s.logger.Warn("rx ack with empty payload")
			return
		}
		s.resolve(f.Payload[0], ErrCodeNone)

	case f.Type == TypeNack:
		if len(f.Payload) < 2 {
			s.logger.Warn("rx nack with short payload")
			return
		}
		s.resolve(f.Payload[0], ErrorCode(f.Payload[1]))

	case f.Type.IsCommand():
		s.handleCommand(f)

	case f.Type.IsReport():
		select {
		case s.reports <- f:
		default:
			// Consumer is behind; dropping beats stalling the read loop.
			s.droppedReports.Add(1)
			s.logger.Warn("reports channel full, dropping", slog.String("type", f.Type.String()))
		}

	default:
		s.logger.Warn("rx unknown frame type", slog.String("type", f.Type.String()), slog.Int("raw", int(f.Type)))
		_ = s.Send(TypeNack, nackPayload(f.Sequence, ErrCodeInvalidCommand))
	}
}

func (s *Session) resolve(seq uint8, code ErrorCode) {
	ch, ok := s.waiters.LoadAndDelete(seq)
	if !ok || ch == nil {
		s.logger.Debug("ack with no waiter", slog.Int("seq", int(seq)))
		return
	}
	select {
	case ch <- code:
	default:
	}
}

func (s *Session) handleCommand(f Frame) {
	if s.handler == nil {
		_ = s.Send(TypeNack, nackPayload(f.Sequence, ErrCodeInvalidCommand))
		return
	}

	err := s.handler(s.ctx, f)
	if err == nil {
		_ = s.Send(TypeAck, ackPayload(f.Sequence))
		return
	}

	code := ErrCodeInternal
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		code = cmdErr.Code
	}
	s.logger.Debug("command failed", slog.String("type", f.Type.String()), slog.Any("err", err))
	_ = s.Send(TypeNack, nackPayload(f.Sequence, code))
}

func (s *Session) Stop() {
	s.cancel()

	// Wait for both loops with timeout to prevent hanging
	done := make(chan struct{})
	go func() {
		<-s.readLoopDone
		<-s.writerLoopDone
		close(done)
	}()

	select {
	case <-done:
		// Clean shutdown
	case <-time.After(stopTimeout):
		s.logger.Warn("session stop timed out, forcing shutdown")
	}
}

// isFatal returns true only for errors that indicate the underlying
// stream is permanently broken. Serial links produce plenty of
// transient errors (suspend/resume, re-enumeration) that should be
// retried instead.
func isFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EBADF: // fd is closed/invalid
			return true
		case syscall.ENOENT: // device node removed
			return true
		}
	}

	return false
}
