package conformance

import (
	"net"
	"time"

	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/wire"

	"go.uber.org/zap"
)

// Default values for Options.
var (
	DefaultReadTimeout = 5 * time.Second
	DefaultQuiescence  = 500 * time.Millisecond
	DefaultConnections = 10
)

// DefaultCases returns the messages injected before the Version in
// RejectNonVersionReplies.
func DefaultCases() []wire.Message {
	return []wire.Message{
		wire.GetAddr{},
		wire.MemPool{},
		wire.Verack{},
		wire.Ping{},
		wire.Pong{},
		wire.Addr{},
		wire.Headers{},
	}
}

// Options parameterise every scenario.
type Options struct {
	Logger *zap.Logger
	Peer   peer.Options
	// IP on which listeners for the node's outbound connections are bound.
	IP          net.IP
	ReadTimeout time.Duration
	// Quiescence is how long a connection is watched after the handshake
	// for replies to an injected message.
	Quiescence time.Duration
	// Connections is the number of connections opened and closed by
	// QuickConnectDisconnect.
	Connections int
	Cases       []wire.Message
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return Options{
		Logger:      logger,
		Peer:        peer.DefaultOptions().WithLogger(logger),
		IP:          net.IPv4(127, 0, 0, 1),
		ReadTimeout: DefaultReadTimeout,
		Quiescence:  DefaultQuiescence,
		Connections: DefaultConnections,
		Cases:       DefaultCases(),
	}
}

func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	opts.Peer.Logger = logger
	return opts
}

func (opts Options) WithPeerOptions(peerOpts peer.Options) Options {
	opts.Peer = peerOpts
	return opts
}

func (opts Options) WithIP(ip net.IP) Options {
	opts.IP = ip
	return opts
}

func (opts Options) WithReadTimeout(timeout time.Duration) Options {
	opts.ReadTimeout = timeout
	return opts
}

func (opts Options) WithQuiescence(quiescence time.Duration) Options {
	opts.Quiescence = quiescence
	return opts
}

func (opts Options) WithConnections(connections int) Options {
	opts.Connections = connections
	return opts
}

func (opts Options) WithCases(cases ...wire.Message) Options {
	opts.Cases = append([]wire.Message{}, cases...)
	return opts
}
