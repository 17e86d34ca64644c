package node

import (
	"time"

	"github.com/autotunafish/zcash/policy"
	"github.com/sirupsen/logrus"

	"go.uber.org/zap"
)

// Default values for Options.
var (
	DefaultStopTimeout  = 10 * time.Second
	DefaultReadyTimeout = policy.MaxTimeout(time.Second, policy.LinearBackoff(1.0, policy.ConstantTimeout(100*time.Millisecond)))
)

// Options parameterise a Process.
type Options struct {
	Logger *zap.Logger
	// Output receives every line that the child writes to stdout and stderr.
	Output       logrus.FieldLogger
	Env          []string
	StopTimeout  time.Duration
	ReadyTimeout policy.Timeout
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger: logger,
		Output: logrus.New().
			WithField("lib", "zcash").
			WithField("pkg", "node").
			WithField("com", "process"),
		StopTimeout:  DefaultStopTimeout,
		ReadyTimeout: DefaultReadyTimeout,
	}
}

func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	return opts
}

func (opts Options) WithOutput(output logrus.FieldLogger) Options {
	opts.Output = output
	return opts
}

// WithEnv adds environment variables, in the form "key=value", to the
// environment inherited by the child.
func (opts Options) WithEnv(env ...string) Options {
	opts.Env = append(append([]string{}, opts.Env...), env...)
	return opts
}

func (opts Options) WithStopTimeout(timeout time.Duration) Options {
	opts.StopTimeout = timeout
	return opts
}

func (opts Options) WithReadyTimeout(timeout policy.Timeout) Options {
	opts.ReadyTimeout = timeout
	return opts
}
