package link

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum frame length")
	ErrTruncatedEscape  = errors.New("escape byte with no following byte")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrShortPayload     = errors.New("payload shorter than its fixed layout")
	ErrSessionClosed    = errors.New("session closed")
	ErrWriterBacklog    = errors.New("writer queue full")
)

// RemoteError is a Nack received in response to a command.
type RemoteError struct {
	Sequence uint8
	Code     ErrorCode
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("command seq %d rejected: %s", e.Sequence, e.Code)
}

// CommandError lets a command handler choose the Nack code sent back to
// the host. Any other handler error maps to ErrCodeInternal.
type CommandError struct {
	Code ErrorCode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed: %s", e.Code)
}
