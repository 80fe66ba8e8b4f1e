package xmodem

import (
	"errors"
	"fmt"
)

// Error represents an XMODEM protocol error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Byte is the offending control byte (valid when HasByte is set)
	Byte    byte
	HasByte bool

	// State names the state that rejected the byte, if any
	State string
}

// ErrorType categorizes XMODEM errors
type ErrorType int

const (
	// ErrChecksum indicates a block whose checksum does not match its payload
	ErrChecksum ErrorType = iota

	// ErrSequence indicates a block whose sequence complement check failed
	ErrSequence

	// ErrInvalidBlock indicates a block of the wrong size
	ErrInvalidBlock

	// ErrUnexpectedByte indicates the receiver got a byte it cannot accept
	ErrUnexpectedByte

	// ErrUnexpectedResponse indicates the sender got a byte it cannot accept
	ErrUnexpectedResponse

	// ErrIO indicates an I/O error outside the transfer itself
	ErrIO

	// ErrSessionUsed indicates an engine was reused after it terminated
	ErrSessionUsed
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("xmodem %s: %s", e.Type, e.Message)
	if e.HasByte {
		msg += fmt.Sprintf(" (byte: 0x%02x %s)", e.Byte, Command(e.Byte))
	}
	if e.State != "" {
		msg += fmt.Sprintf(" (state: %s)", e.State)
	}
	return msg
}

func (t ErrorType) String() string {
	switch t {
	case ErrChecksum:
		return "checksum error"
	case ErrSequence:
		return "sequence error"
	case ErrInvalidBlock:
		return "invalid block"
	case ErrUnexpectedByte:
		return "unexpected byte"
	case ErrUnexpectedResponse:
		return "unexpected response"
	case ErrIO:
		return "I/O error"
	case ErrSessionUsed:
		return "session used"
	default:
		return "unknown error"
	}
}

// NewError creates a new XMODEM error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

func newErrorf(errType ErrorType, format string, args ...interface{}) *Error {
	return NewError(errType, fmt.Sprintf(format, args...))
}

// NewByteError creates a protocol violation error naming the rejected byte
// and the state that rejected it.
func NewByteError(errType ErrorType, message string, b byte, state string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Byte:    b,
		HasByte: true,
		State:   state,
	}
}

func isType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsChecksum checks if an error is a checksum error
func IsChecksum(err error) bool {
	return isType(err, ErrChecksum)
}

// IsSequence checks if an error is a sequence complement error
func IsSequence(err error) bool {
	return isType(err, ErrSequence)
}

// IsUnexpected checks if an error is a protocol violation on either side
func IsUnexpected(err error) bool {
	return isType(err, ErrUnexpectedByte) || isType(err, ErrUnexpectedResponse)
}

// OffendingByte returns the byte named by a protocol violation.
func OffendingByte(err error) (byte, bool) {
	var e *Error
	if errors.As(err, &e) && e.HasByte {
		return e.Byte, true
	}
	return 0, false
}
