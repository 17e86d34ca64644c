package peer

import (
	"time"

	"github.com/autotunafish/zcash/policy"
	"github.com/autotunafish/zcash/wire"

	"go.uber.org/zap"
)

// Default values for Options.
var (
	DefaultMagic         = wire.RegtestMagic
	DefaultMaxMessageLen = wire.MaxMessageLen
	DefaultReadTimeout   = 5 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultDialTimeout   = 5 * time.Second
	// DefaultDialRetry doubles the attempt timeout from 100ms, up to a second.
	DefaultDialRetry = policy.MaxTimeout(time.Second, policy.ExponentialBackoff(2.0, policy.ConstantTimeout(50*time.Millisecond)))
)

// Options parameterise a Conn.
type Options struct {
	Logger        *zap.Logger
	Magic         wire.Magic
	MaxMessageLen int
	// ReadTimeout bounds ReadMessage when no explicit timeout is given.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	// DialRetry bounds each attempt made by Dial.
	DialRetry policy.Timeout
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger:        logger,
		Magic:         DefaultMagic,
		MaxMessageLen: DefaultMaxMessageLen,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		DialTimeout:   DefaultDialTimeout,
		DialRetry:     DefaultDialRetry,
	}
}

func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	return opts
}

func (opts Options) WithMagic(magic wire.Magic) Options {
	opts.Magic = magic
	return opts
}

func (opts Options) WithMaxMessageLen(maxMessageLen int) Options {
	opts.MaxMessageLen = maxMessageLen
	return opts
}

func (opts Options) WithReadTimeout(timeout time.Duration) Options {
	opts.ReadTimeout = timeout
	return opts
}

func (opts Options) WithWriteTimeout(timeout time.Duration) Options {
	opts.WriteTimeout = timeout
	return opts
}

func (opts Options) WithDialTimeout(timeout time.Duration) Options {
	opts.DialTimeout = timeout
	return opts
}

func (opts Options) WithDialRetry(timeout policy.Timeout) Options {
	opts.DialRetry = timeout
	return opts
}
