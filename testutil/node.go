// Package testutil provides fixtures for testing the harness without a real
// zcashd or zebra binary. Node is an in-process node that speaks the wire
// protocol well enough to handshake, answer pings, and drop misbehaving peers.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/autotunafish/zcash/filter"
	"github.com/autotunafish/zcash/node"
	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/policy"
	"github.com/autotunafish/zcash/tcp"
	"github.com/autotunafish/zcash/wire"
	"golang.org/x/time/rate"

	"go.uber.org/zap"
)

// Behaviour is how a Node treats peers that do not follow the protocol.
type Behaviour uint8

// Enumeration of behaviours.
const (
	// Strict nodes drop a peer that sends anything other than a Version
	// before its Version, or sends a malformed frame.
	Strict = Behaviour(iota)
	// Lenient nodes ignore messages that arrive before the Version, and drop
	// a peer that sends a malformed frame.
	Lenient
	// Chatty nodes answer messages that arrive before the Version, and ignore
	// malformed frames by discarding everything that follows them. Both are
	// protocol violations.
	Chatty
)

func (behaviour Behaviour) String() string {
	switch behaviour {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	case Chatty:
		return "chatty"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(behaviour))
	}
}

// NodeOptions parameterise a Node.
type NodeOptions struct {
	Logger    *zap.Logger
	Behaviour Behaviour
	IP        net.IP
	// Peer options for every connection. The read timeout doubles as the
	// idle timeout after which a silent peer is dropped.
	Peer     peer.Options
	MaxConns int
	// Rate at which a single IP address may open connections.
	ConnRate  rate.Limit
	ConnBurst int
}

func DefaultNodeOptions() NodeOptions {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return NodeOptions{
		Logger:    logger,
		Behaviour: Strict,
		IP:        net.IPv4(127, 0, 0, 1),
		Peer:      peer.DefaultOptions().WithLogger(logger).WithReadTimeout(time.Second),
		MaxConns:  256,
		ConnRate:  rate.Inf,
		ConnBurst: 1,
	}
}

func (opts NodeOptions) WithLogger(logger *zap.Logger) NodeOptions {
	opts.Logger = logger
	opts.Peer.Logger = logger
	return opts
}

func (opts NodeOptions) WithBehaviour(behaviour Behaviour) NodeOptions {
	opts.Behaviour = behaviour
	return opts
}

func (opts NodeOptions) WithPeerOptions(peerOpts peer.Options) NodeOptions {
	opts.Peer = peerOpts
	return opts
}

func (opts NodeOptions) WithMaxConns(maxConns int) NodeOptions {
	opts.MaxConns = maxConns
	return opts
}

func (opts NodeOptions) WithConnRate(r rate.Limit, b int) NodeOptions {
	opts.ConnRate = r
	opts.ConnBurst = b
	return opts
}

// Node is an in-process implementation of node.Node.
type Node struct {
	opts NodeOptions

	mu       deadlock.Mutex
	state    node.State
	peers    []string
	waitAddr string
	addr     net.Addr
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	handshakes atomic.Int64
	dropped    atomic.Int64
}

var _ node.Node = &Node{}

func NewNode(opts NodeOptions) *Node {
	if opts.Logger == nil {
		panic("testutil: nil logger")
	}
	if opts.Peer.Logger == nil {
		opts.Peer.Logger = opts.Logger
	}
	return &Node{opts: opts}
}

func (n *Node) InitialPeers(addrs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != node.NotStarted {
		panic(fmt.Sprintf("testutil: setting initial peers while %v", n.state))
	}
	n.peers = append([]string{}, addrs...)
}

func (n *Node) WaitForConnection(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != node.NotStarted {
		panic(fmt.Sprintf("testutil: setting wait address while %v", n.state))
	}
	n.waitAddr = addr
}

// Start listening, and dial every initial peer in the background. The Node
// runs until Stop is called; the context only bounds startup.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != node.NotStarted {
		return fmt.Errorf("%w: starting while %v", node.ErrBadState, n.state)
	}

	var waitListener net.Listener
	peers := append([]string{}, n.peers...)
	if n.waitAddr != "" {
		var err error
		if waitListener, err = new(net.ListenConfig).Listen(ctx, "tcp", n.waitAddr); err != nil {
			return fmt.Errorf("listening on %v: %w", n.waitAddr, err)
		}
		defer waitListener.Close()
		peers = append(peers, n.waitAddr)
	}

	listener, _, err := tcp.ListenerWithAssignedPort(ctx, n.opts.IP)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	n.addr = listener.Addr()

	runCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.state = node.Running
	n.opts.Logger.Info("started", zap.Stringer("addr", n.addr), zap.Stringer("behaviour", n.opts.Behaviour), zap.Strings("peers", peers))

	allow := policy.All(
		policy.Max(n.opts.MaxConns),
		policy.RateLimit(n.opts.ConnRate, n.opts.ConnBurst, 1024),
	)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		err := tcp.ListenWithListener(runCtx, listener, func(conn net.Conn) {
			n.serve(runCtx, conn, false)
		}, func(err error) {
			n.opts.Logger.Debug("listen", zap.Error(err))
		}, allow)
		if err != nil && !errors.Is(err, context.Canceled) {
			n.opts.Logger.Error("listen", zap.Error(err))
		}
	}()

	for _, addr := range peers {
		addr := addr
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			err := tcp.Dial(runCtx, addr, func(conn net.Conn) {
				n.serve(runCtx, conn, true)
			}, func(err error) {
				n.opts.Logger.Debug("dial", zap.String("addr", addr), zap.Error(err))
			}, policy.ConstantTimeout(100*time.Millisecond))
			if err != nil && !errors.Is(err, context.Canceled) {
				n.opts.Logger.Warn("dial", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	if waitListener == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		waitListener.Close()
	})
	defer stop()
	conn, err := waitListener.Accept()
	if err != nil {
		n.stop()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("waiting for node: %w", ctxErr)
		}
		return fmt.Errorf("waiting for node: %w", err)
	}
	return conn.Close()
}

func (n *Node) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.addr
}

// Stop closes every connection and waits for them to be released.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != node.Running {
		return nil
	}
	n.stop()
	return nil
}

func (n *Node) stop() {
	n.state = node.Stopped
	n.cancel()
	n.wg.Wait()
	n.opts.Logger.Info("stopped", zap.Int64("handshakes", n.handshakes.Load()), zap.Int64("dropped", n.dropped.Load()))
}

// Handshakes returns the number of peers whose Version has been accepted.
func (n *Node) Handshakes() int {
	return int(n.handshakes.Load())
}

// Dropped returns the number of peers that were dropped for misbehaving.
func (n *Node) Dropped() int {
	return int(n.dropped.Load())
}

// serve a connection until the peer closes it, misbehaves, or is idle for
// longer than the read timeout. Outbound connections send the Version first;
// inbound connections wait for it, and reply with their own.
func (n *Node) serve(ctx context.Context, raw net.Conn, outbound bool) {
	conn := peer.New(raw, n.opts.Peer)
	defer conn.Close()
	logger := conn.Logger().With(zap.Bool("outbound", outbound))

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if outbound {
		if err := conn.WriteMessage(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr())); err != nil {
			logger.Debug("writing version", zap.Error(err))
			return
		}
	}

	handshaken := false
	for {
		msg, err := conn.ReadMessage(ctx, 0)
		if err != nil {
			outcome := peer.Classify(err)
			logger.Debug("reading", zap.Stringer("outcome", outcome), zap.Error(err))
			if outcome == peer.OutcomeViolation {
				if n.opts.Behaviour == Chatty {
					discard(raw)
					return
				}
				n.dropped.Add(1)
			}
			return
		}

		var replies []wire.Message
		switch {
		case !handshaken:
			if _, ok := msg.(wire.Version); ok {
				n.handshakes.Add(1)
				handshaken = true
				if !outbound {
					replies = append(replies, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr()))
				}
				replies = append(replies, wire.Verack{})
				break
			}
			switch n.opts.Behaviour {
			case Strict:
				logger.Debug("dropping peer", zap.String("command", msg.Command()))
				n.dropped.Add(1)
				return
			case Chatty:
				if reply, ok := filter.Reply(msg); ok {
					replies = append(replies, reply)
				}
			}
		default:
			if _, ok := msg.(wire.Version); ok {
				logger.Debug("duplicate version")
				break
			}
			if reply, ok := filter.Reply(msg); ok {
				replies = append(replies, reply)
			}
		}

		for _, reply := range replies {
			if err := conn.WriteMessage(ctx, reply); err != nil {
				logger.Debug("writing", zap.String("command", reply.Command()), zap.Error(err))
				return
			}
		}
	}
}

// discard everything the peer sends until it closes the connection.
func discard(conn net.Conn) {
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return
	}
	io.Copy(io.Discard, conn)
}
