package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/autotunafish/zcash/wire"
)

var (
	// ErrTimeout is returned when a read or write does not complete before
	// its deadline. It is an expected outcome, not a fault.
	ErrTimeout = errors.New("timeout")

	// ErrConnectionTerminated is returned when the remote end closed, reset
	// or aborted the connection, or when a write hit a broken pipe. All of
	// these are the same event: the peer is gone.
	ErrConnectionTerminated = errors.New("connection terminated")
)

// ProtocolViolation wraps a parse error from the wire package. The remote end
// sent bytes that do not form a valid frame or payload.
type ProtocolViolation struct {
	Err error
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %v", e.Err)
}

func (e *ProtocolViolation) Unwrap() error {
	return e.Err
}

// Outcome is the semantic class of an error returned by a Conn.
type Outcome uint8

// Enumeration of outcomes.
const (
	OutcomeOK = Outcome(iota)
	OutcomeTimeout
	OutcomeTerminated
	OutcomeViolation
	OutcomeUnexpected
)

func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTerminated:
		return "terminated"
	case OutcomeViolation:
		return "violation"
	default:
		return "unexpected"
	}
}

// Classify maps an error to its Outcome. It understands the errors returned by
// a Conn as well as raw transport errors, so callers never need to inspect
// platform error codes.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var violation *ProtocolViolation
	if errors.As(err, &violation) {
		return OutcomeViolation
	}
	if errors.Is(err, ErrConnectionTerminated) {
		return OutcomeTerminated
	}
	if errors.Is(err, ErrTimeout) {
		return OutcomeTimeout
	}

	if IsTermination(err) {
		return OutcomeTerminated
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if wire.IsParseError(err) {
		return OutcomeViolation
	}
	return OutcomeUnexpected
}

// IsTermination returns true if err is one of the transport conditions that
// mean the remote end is gone: end of stream, reset, abort, broken pipe, or a
// connection that is already closed.
func IsTermination(err error) bool {
	return errors.Is(err, ErrConnectionTerminated) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// classify wraps a raw error from the transport or the codec into one of the
// errors documented by Conn.
func classify(err error) error {
	switch Classify(err) {
	case OutcomeOK:
		return nil
	case OutcomeTerminated:
		if errors.Is(err, ErrConnectionTerminated) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConnectionTerminated, err)
	case OutcomeTimeout:
		if errors.Is(err, ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case OutcomeViolation:
		var violation *ProtocolViolation
		if errors.As(err, &violation) {
			return err
		}
		return &ProtocolViolation{Err: err}
	default:
		return err
	}
}
