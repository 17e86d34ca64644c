package conformance

import (
	"errors"
	"fmt"

	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/wire"
)

// ErrUnexpectedMessage is wrapped by a Violation when the node sent a message
// that the scenario does not permit.
var ErrUnexpectedMessage = errors.New("unexpected message")

// A Violation is a node behaviour that the protocol does not permit. Kind is
// the command of the offending message, or the outcome of the failed read or
// write.
type Violation struct {
	Scenario string
	Case     string
	Kind     string
	Err      error
}

// NewViolation returns a Violation for an error returned by a peer.Conn.
func NewViolation(scenario, c string, err error) *Violation {
	return &Violation{
		Scenario: scenario,
		Case:     c,
		Kind:     peer.Classify(err).String(),
		Err:      err,
	}
}

// NewUnexpectedMessage returns a Violation for a message that should not have
// been sent.
func NewUnexpectedMessage(scenario, c string, msg wire.Message, want string) *Violation {
	return &Violation{
		Scenario: scenario,
		Case:     c,
		Kind:     msg.Command(),
		Err:      fmt.Errorf("%w: expected %v, got %v", ErrUnexpectedMessage, want, msg.Command()),
	}
}

func (v *Violation) Error() string {
	if v.Case == "" {
		return fmt.Sprintf("%v: %v: %v", v.Scenario, v.Kind, v.Err)
	}
	return fmt.Sprintf("%v (%v): %v: %v", v.Scenario, v.Case, v.Kind, v.Err)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// Violations returns every Violation in the tree of err.
func Violations(err error) []*Violation {
	var violations []*Violation
	var walk func(error)
	walk = func(err error) {
		switch err := err.(type) {
		case nil:
		case *Violation:
			violations = append(violations, err)
		case interface{ Unwrap() []error }:
			for _, err := range err.Unwrap() {
				walk(err)
			}
		case interface{ Unwrap() error }:
			walk(err.Unwrap())
		}
	}
	walk(err)
	return violations
}
