// Package filter implements an auto-responder that keeps a synthetic peer
// alive. It reads messages from a connection, answers the ones it knows how to
// answer, and returns the first message that the caller wants to see.
//
//	f := filter.New(filter.DefaultOptions().WithAllAutoReply())
//	msg, err := f.NextUnfiltered(ctx, conn, 5*time.Second)
//
// Every call reads at most Budget messages, so a peer that floods the
// connection with pings cannot stall the caller.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/wire"

	"go.uber.org/zap"
)

// ErrBudgetExhausted is returned, alongside the last message read, when every
// message within the budget was answered automatically.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Action is what the Filter does with a message of a given command.
type Action uint8

// Enumeration of actions.
const (
	// Disabled messages are returned to the caller.
	Disabled = Action(iota)
	// AutoReply messages are answered with their canonical reply, and then
	// dropped. Messages without a canonical reply are returned to the caller.
	AutoReply
)

func (action Action) String() string {
	switch action {
	case Disabled:
		return "disabled"
	case AutoReply:
		return "autoreply"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(action))
	}
}

// State of a Filter.
type State uint32

// Enumeration of states.
const (
	Idle = State(iota)
	Draining
	Closed
)

func (state State) String() string {
	switch state {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(state))
	}
}

// A Conn is a message-level connection. It is implemented by *peer.Conn.
type Conn interface {
	ReadMessage(ctx context.Context, timeout time.Duration) (wire.Message, error)
	WriteMessage(ctx context.Context, msg wire.Message) error
}

// A Filter is bound to a single connection. Its policy table is fixed when it
// is created; only the logging flag can change afterwards.
type Filter struct {
	logger *zap.Logger
	budget int
	policy map[string]Action
	logAll atomic.Bool

	drainMu sync.Mutex
	state   atomic.Uint32
}

// New returns a Filter in the Idle state. It panics if the policy table is
// missing a known command.
func New(opts Options) *Filter {
	if opts.Logger == nil {
		panic("filter: nil logger")
	}
	policy := make(map[string]Action, len(wire.Commands))
	for _, command := range wire.Commands {
		action, ok := opts.Policy[command]
		if !ok {
			panic(fmt.Sprintf("filter: no policy for %q", command))
		}
		policy[command] = action
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	f := &Filter{
		logger: opts.Logger,
		budget: budget,
		policy: policy,
	}
	f.logAll.Store(opts.LogAll)
	return f
}

// Action returns the Action for a command. Commands that are not known are
// always Disabled.
func (f *Filter) Action(command string) Action {
	if !wire.IsKnownCommand(command) {
		return Disabled
	}
	action, ok := f.policy[command]
	if !ok {
		panic(fmt.Sprintf("filter: no policy for %q", command))
	}
	return action
}

// State returns the current State.
func (f *Filter) State() State {
	return State(f.state.Load())
}

// SetLogAll enables or disables logging of every observed message.
func (f *Filter) SetLogAll(logAll bool) {
	f.logAll.Store(logAll)
}

// NextUnfiltered reads messages from conn until one of them is not answered
// automatically, and returns it. Each read is bounded by timeout. At most
// Budget messages are read; if all of them were answered, the last one is
// returned with ErrBudgetExhausted. Read and write errors are returned as
// they are, after which the Filter is Closed if the error means the
// connection was terminated. A Closed Filter fails immediately with
// peer.ErrConnectionTerminated.
func (f *Filter) NextUnfiltered(ctx context.Context, conn Conn, timeout time.Duration) (wire.Message, error) {
	f.drainMu.Lock()
	defer f.drainMu.Unlock()

	if !f.state.CompareAndSwap(uint32(Idle), uint32(Draining)) {
		return nil, fmt.Errorf("filter %v: %w", f.State(), peer.ErrConnectionTerminated)
	}
	defer f.state.CompareAndSwap(uint32(Draining), uint32(Idle))

	var last wire.Message
	for i := 0; i < f.budget; i++ {
		msg, err := conn.ReadMessage(ctx, timeout)
		if err != nil {
			return nil, f.fail(err)
		}

		action := f.Action(msg.Command())
		reply, ok := Reply(msg)
		if action == Disabled || !ok {
			f.observe(msg, action, nil)
			return msg, nil
		}
		f.observe(msg, action, reply)
		if err := conn.WriteMessage(ctx, reply); err != nil {
			return nil, f.fail(err)
		}
		last = msg
	}
	return last, ErrBudgetExhausted
}

func (f *Filter) fail(err error) error {
	if peer.Classify(err) == peer.OutcomeTerminated {
		f.state.Store(uint32(Closed))
	}
	return err
}

func (f *Filter) observe(msg wire.Message, action Action, reply wire.Message) {
	if !f.logAll.Load() {
		return
	}
	if reply == nil {
		f.logger.Info("observed", zap.String("command", msg.Command()), zap.Stringer("action", action))
		return
	}
	f.logger.Info("observed", zap.String("command", msg.Command()), zap.Stringer("action", action), zap.String("reply", reply.Command()))
}
