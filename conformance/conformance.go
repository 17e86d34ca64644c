// Package conformance drives a node through handshakes, and checks that its
// replies (or its silence, or its decision to drop the connection) are ones
// the protocol permits.
//
// Every scenario takes a node that has not been started, starts it, and stops
// it before returning. A nil error means the node conformed. A node that did
// not conform is reported as one or more *Violation errors; anything else is
// a failure of the harness itself.
//
//	n := node.NewProcess(cfg, node.DefaultOptions())
//	if err := conformance.RejectNonVersionReplies(ctx, n, conformance.DefaultOptions()); err != nil {
//		for _, v := range conformance.Violations(err) {
//			...
//		}
//	}
package conformance

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/autotunafish/zcash/filter"
	"github.com/autotunafish/zcash/node"
	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/tcp"
	"github.com/autotunafish/zcash/wire"
	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"
)

// Scenario names, used in Violations.
const (
	ScenarioHandshakeResponder      = "handshake responder"
	ScenarioHandshakeInitiator      = "handshake initiator"
	ScenarioRejectNonVersionReplies = "reject non-version replies"
	ScenarioQuickConnectDisconnect  = "quick connect disconnect"
)

// HandshakeResponder connects to the node, sends a Version, and expects a
// Version back. It then sends a Verack, and expects a Verack back.
func HandshakeResponder(ctx context.Context, n node.Node, opts Options) error {
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer stopNode(n, opts.Logger)

	return respond(ctx, ScenarioHandshakeResponder, n.Addr(), opts)
}

// HandshakeInitiator listens for the node, which dials the listener when it
// starts. It expects a Version from the node, replies with a Version, expects
// a Verack, and then sends its own Verack.
func HandshakeInitiator(ctx context.Context, n node.Node, opts Options) error {
	listener, _, err := tcp.ListenerWithAssignedPort(ctx, opts.IP)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	defer listener.Close()

	n.InitialPeers(listener.Addr().String())
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer stopNode(n, opts.Logger)

	conn, err := accept(ctx, listener, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := step{scenario: ScenarioHandshakeInitiator, conn: conn, opts: opts}
	if _, err := s.expect(ctx, wire.CmdVersion); err != nil {
		return err
	}
	if err := s.write(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr())); err != nil {
		return err
	}
	if _, err := s.expect(ctx, wire.CmdVerack); err != nil {
		return err
	}
	return s.write(ctx, wire.Verack{})
}

// RejectNonVersionReplies checks that the node does not reply to messages sent
// before the Version. Each case runs on its own connection, dialled by the
// node when it starts. The connection receives the node's Version, then the
// case's message, then a Version. The node conforms if it drops the
// connection, or if it sends a Verack and nothing in reply to the injected
// message within the quiescence period.
func RejectNonVersionReplies(ctx context.Context, n node.Node, opts Options) error {
	listeners := make([]net.Listener, len(opts.Cases))
	addrs := make([]string, len(opts.Cases))
	defer func() {
		for _, listener := range listeners {
			if listener != nil {
				listener.Close()
			}
		}
	}()
	for i := range opts.Cases {
		listener, _, err := tcp.ListenerWithAssignedPort(ctx, opts.IP)
		if err != nil {
			return fmt.Errorf("listening: %w", err)
		}
		listeners[i] = listener
		addrs[i] = listener.Addr().String()
	}

	n.InitialPeers(addrs...)
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer stopNode(n, opts.Logger)

	violations := make([]error, len(opts.Cases))
	g, gctx := errgroup.WithContext(ctx)
	for i, msg := range opts.Cases {
		i, msg := i, msg
		g.Go(func() error {
			conn, err := accept(gctx, listeners[i], opts)
			if err != nil {
				return fmt.Errorf("accepting %v case: %w", msg.Command(), err)
			}
			defer conn.Close()
			violations[i] = rejectCase(gctx, conn, msg, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(violations...)
}

func rejectCase(ctx context.Context, conn *peer.Conn, msg wire.Message, opts Options) error {
	s := step{scenario: ScenarioRejectNonVersionReplies, c: msg.Command(), conn: conn, opts: opts}
	logger := conn.Logger().With(zap.String("case", s.c))

	if _, err := s.expect(ctx, wire.CmdVersion); err != nil {
		return err
	}
	if err := conn.WriteMessage(ctx, msg); err != nil {
		return s.terminatedOr(err)
	}
	if err := conn.WriteMessage(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr())); err != nil {
		return s.terminatedOr(err)
	}
	reply, err := conn.ReadMessage(ctx, opts.ReadTimeout)
	if err != nil {
		return s.terminatedOr(err)
	}
	if reply.Command() != wire.CmdVerack {
		return NewUnexpectedMessage(s.scenario, s.c, reply, wire.CmdVerack)
	}

	// The node completed the handshake, so it must have ignored the injected
	// message. Watch for a late reply to it.
	forbidden, ok := filter.Reply(msg)
	if !ok {
		logger.Debug("handshake completed")
		return nil
	}
	qctx, cancel := context.WithTimeout(ctx, opts.Quiescence)
	defer cancel()
	for {
		late, err := conn.ReadMessage(qctx, 0)
		if err != nil {
			switch peer.Classify(err) {
			case peer.OutcomeTimeout, peer.OutcomeTerminated:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Debug("handshake completed")
				return nil
			default:
				return NewViolation(s.scenario, s.c, err)
			}
		}
		if late.Command() == forbidden.Command() {
			return NewUnexpectedMessage(s.scenario, s.c, late, "silence")
		}
		logger.Debug("ignoring", zap.String("command", late.Command()))
	}
}

// QuickConnectDisconnect opens and immediately closes a number of connections
// to the node, and then checks that it still completes a handshake.
func QuickConnectDisconnect(ctx context.Context, n node.Node, opts Options) error {
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer stopNode(n, opts.Logger)

	addr := n.Addr().String()
	for i := 0; i < opts.Connections; i++ {
		conn, err := peer.Dial(ctx, addr, opts.Peer)
		if err != nil {
			return NewViolation(ScenarioQuickConnectDisconnect, fmt.Sprintf("connection %d", i), err)
		}
		if err := conn.Close(); err != nil {
			return fmt.Errorf("closing: %w", err)
		}
	}
	return respond(ctx, ScenarioQuickConnectDisconnect, n.Addr(), opts)
}

func respond(ctx context.Context, scenario string, addr net.Addr, opts Options) error {
	conn, err := peer.Dial(ctx, addr.String(), opts.Peer)
	if err != nil {
		return NewViolation(scenario, "", err)
	}
	defer conn.Close()

	s := step{scenario: scenario, conn: conn, opts: opts}
	if err := s.write(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr())); err != nil {
		return err
	}
	if _, err := s.expect(ctx, wire.CmdVersion); err != nil {
		return err
	}
	if err := s.write(ctx, wire.Verack{}); err != nil {
		return err
	}
	_, err = s.expect(ctx, wire.CmdVerack)
	return err
}

// accept one connection from the node, or fail when the context is done.
func accept(ctx context.Context, listener net.Listener, opts Options) (*peer.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	raw, err := listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return peer.New(raw, opts.Peer), nil
}

func stopNode(n node.Node, logger *zap.Logger) {
	if err := n.Stop(); err != nil {
		logger.Error("stopping node", zap.Error(err))
	}
}

// step reads and writes on behalf of a scenario, turning every failure into a
// Violation.
type step struct {
	scenario string
	c        string
	conn     *peer.Conn
	opts     Options
}

func (s step) expect(ctx context.Context, command string) (wire.Message, error) {
	msg, err := s.conn.ReadMessage(ctx, s.opts.ReadTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NewViolation(s.scenario, s.c, fmt.Errorf("expecting %v: %w", command, err))
	}
	if msg.Command() != command {
		return nil, NewUnexpectedMessage(s.scenario, s.c, msg, command)
	}
	return msg, nil
}

func (s step) write(ctx context.Context, msg wire.Message) error {
	if err := s.conn.WriteMessage(ctx, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return NewViolation(s.scenario, s.c, fmt.Errorf("writing %v: %w", msg.Command(), err))
	}
	return nil
}

// terminatedOr returns nil if err means the node dropped the connection, and a
// Violation otherwise.
func (s step) terminatedOr(err error) error {
	if peer.Classify(err) == peer.OutcomeTerminated {
		s.conn.Logger().Debug("node dropped connection", zap.String("case", s.c))
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewViolation(s.scenario, s.c, err)
}
