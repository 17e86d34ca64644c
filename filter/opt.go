package filter

import (
	"fmt"

	"github.com/autotunafish/zcash/wire"

	"go.uber.org/zap"
)

// DefaultBudget is the number of messages that NextUnfiltered reads before
// giving up.
const DefaultBudget = 10

// Options parameterise a Filter. The policy table holds an Action for every
// known command.
type Options struct {
	Logger *zap.Logger
	Budget int
	LogAll bool
	Policy map[string]Action
}

// DefaultOptions returns Options where every command is Disabled, so that a
// Filter built from them passes every message through.
func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger: logger,
		Budget: DefaultBudget,
		LogAll: false,
		Policy: uniform(Disabled),
	}
}

func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	return opts
}

func (opts Options) WithBudget(budget int) Options {
	opts.Budget = budget
	return opts
}

func (opts Options) WithLogAll(logAll bool) Options {
	opts.LogAll = logAll
	return opts
}

// WithPolicy sets the Action for one command. It panics if the command is not
// known.
func (opts Options) WithPolicy(command string, action Action) Options {
	if !wire.IsKnownCommand(command) {
		panic(fmt.Sprintf("filter: unknown command %q", command))
	}
	policy := make(map[string]Action, len(opts.Policy))
	for k, v := range opts.Policy {
		policy[k] = v
	}
	policy[command] = action
	opts.Policy = policy
	return opts
}

// WithAllAutoReply sets every command to AutoReply.
func (opts Options) WithAllAutoReply() Options {
	opts.Policy = uniform(AutoReply)
	return opts
}

// WithAllDisabled sets every command to Disabled.
func (opts Options) WithAllDisabled() Options {
	opts.Policy = uniform(Disabled)
	return opts
}

func uniform(action Action) map[string]Action {
	policy := make(map[string]Action, len(wire.Commands))
	for _, command := range wire.Commands {
		policy[command] = action
	}
	return policy
}
