package wire

import (
	"errors"
	"fmt"
)

// Parse errors. Every error returned by the decoding functions in this package
// wraps exactly one of these, so callers should use errors.Is to inspect them.
var (
	ErrTruncatedInput   = errors.New("truncated input")
	ErrTrailingBytes    = errors.New("trailing bytes")
	ErrMalformedField   = errors.New("malformed field")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrHeaderInvalid    = errors.New("invalid header")
)

// MessageError describes an issue with a frame or a payload. It records the
// function that found the issue, and wraps one of the parse error sentinels.
//
// This allows callers to differentiate between transport errors (such as
// io.EOF) and errors that resulted from malformed input.
type MessageError struct {
	Func        string
	Err         error
	Description string
}

// NewMessageError returns a MessageError that wraps err.
func NewMessageError(f string, err error, desc string) *MessageError {
	return messageError(f, err, desc)
}

func messageError(f string, err error, desc string) *MessageError {
	return &MessageError{Func: f, Err: err, Description: desc}
}

func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%v: %v: %v", e.Func, e.Err, e.Description)
	}
	return fmt.Sprintf("%v: %v", e.Err, e.Description)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// IsParseError returns true if err was caused by malformed input, as opposed
// to a transport failure.
func IsParseError(err error) bool {
	var msgErr *MessageError
	return errors.As(err, &msgErr)
}
