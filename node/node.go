// Package node manages the node under test. The harness only needs a handful
// of operations from a node: fix the peers it dials at startup, start it, find
// its address, and stop it. Node captures those operations; Process implements
// them for a real zcashd or zebra binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// State of a Node.
type State uint8

// Enumeration of states. A Node moves from NotStarted to Running to Stopped,
// and never back.
const (
	NotStarted = State(iota)
	Running
	Stopped
)

func (state State) String() string {
	switch state {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(state))
	}
}

// ErrBadState is returned when an operation is not allowed in the current
// State.
var ErrBadState = errors.New("bad state")

// A Node is a node under test.
type Node interface {
	// InitialPeers sets the addresses that the node dials when it starts. It
	// replaces any previous call. It panics if the node has been started,
	// because a running node cannot be reconfigured.
	InitialPeers(addrs ...string)

	// WaitForConnection makes Start bind a listener to addr, add addr to the
	// initial peers, and only return once the node has connected to it. It
	// panics if the node has been started.
	WaitForConnection(addr string)

	// Start the node, and wait until it is ready.
	Start(ctx context.Context) error

	// Addr returns the address on which the node listens for peers. It is
	// nil until the node has started.
	Addr() net.Addr

	// Stop the node. Stopping a node that is not running does nothing.
	Stop() error
}
