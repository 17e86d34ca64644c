package filter_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/autotunafish/zcash/filter"
	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/tcp"
	"github.com/autotunafish/zcash/wire"
	"github.com/renproject/id"
	"go.uber.org/zap"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// scripted is a filter.Conn that returns a fixed sequence of reads and
// records every write. Once the script is exhausted, reads return io.EOF.
type scripted struct {
	reads  []interface{}
	writes []wire.Message
}

func (conn *scripted) ReadMessage(ctx context.Context, timeout time.Duration) (wire.Message, error) {
	if len(conn.reads) == 0 {
		return nil, io.EOF
	}
	next := conn.reads[0]
	conn.reads = conn.reads[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(wire.Message), nil
}

func (conn *scripted) WriteMessage(ctx context.Context, msg wire.Message) error {
	conn.writes = append(conn.writes, msg)
	return nil
}

var _ = Describe("Filter", func() {
	opts := filter.DefaultOptions().WithLogger(zap.NewNop())

	Context("when every command is disabled", func() {
		It("should return the first message without replying", func() {
			conn := &scripted{reads: []interface{}{wire.Ping{Nonce: wire.Nonce{1}}}}
			f := filter.New(opts)
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Ping{Nonce: wire.Nonce{1}}))
			Expect(conn.writes).To(BeEmpty())
			Expect(f.State()).To(Equal(filter.Idle))
		})
	})

	Context("when every command is auto-replied", func() {
		It("should answer until a message without a reply arrives", func() {
			conn := &scripted{reads: []interface{}{
				wire.Ping{Nonce: wire.Nonce{1}},
				wire.Version{},
				wire.GetAddr{},
				wire.GetData{Inventory: []wire.InvVect{{Type: wire.InvTypeBlock, Hash: id.Hash{7}}}},
				wire.Inv{},
			}}
			f := filter.New(opts.WithAllAutoReply())
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Inv{}))
			Expect(conn.writes).To(Equal([]wire.Message{
				wire.Pong{Nonce: wire.Nonce{1}},
				wire.Verack{},
				wire.Addr{},
				wire.NotFound{Inventory: []wire.InvVect{{Type: wire.InvTypeBlock, Hash: id.Hash{7}}}},
			}))
		})

		It("should return unknown messages to the caller", func() {
			unknown := wire.Unknown{Cmd: [wire.CommandLen]byte{'f', 'o', 'o'}}
			conn := &scripted{reads: []interface{}{wire.Ping{}, unknown}}
			f := filter.New(opts.WithAllAutoReply())
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(unknown))
			Expect(conn.writes).To(HaveLen(1))
		})

		It("should stop after the budget is exhausted", func() {
			reads := make([]interface{}, 100)
			for i := range reads {
				reads[i] = wire.Ping{Nonce: wire.Nonce{byte(i)}}
			}
			conn := &scripted{reads: reads}
			f := filter.New(opts.WithAllAutoReply().WithBudget(10))
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(errors.Is(err, filter.ErrBudgetExhausted)).To(BeTrue())
			Expect(msg).To(Equal(wire.Ping{Nonce: wire.Nonce{9}}))
			Expect(conn.writes).To(HaveLen(10))
			Expect(conn.reads).To(HaveLen(90))
			Expect(f.State()).To(Equal(filter.Idle))
		})
	})

	Context("when a single command is overridden", func() {
		It("should only answer that command", func() {
			conn := &scripted{reads: []interface{}{wire.Ping{}, wire.Version{}}}
			f := filter.New(opts.WithAllDisabled().WithPolicy(wire.CmdPing, filter.AutoReply))
			Expect(f.Action(wire.CmdPing)).To(Equal(filter.AutoReply))
			Expect(f.Action(wire.CmdVersion)).To(Equal(filter.Disabled))
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Version{}))
			Expect(conn.writes).To(Equal([]wire.Message{wire.Pong{}}))
		})

		It("should panic for an unknown command", func() {
			Expect(func() { opts.WithPolicy("foo", filter.AutoReply) }).To(Panic())
		})

		It("should not change the options it was derived from", func() {
			base := opts.WithAllDisabled()
			_ = base.WithPolicy(wire.CmdPing, filter.AutoReply)
			Expect(filter.New(base).Action(wire.CmdPing)).To(Equal(filter.Disabled))
		})
	})

	Context("when the policy table is missing a command", func() {
		It("should panic", func() {
			broken := opts
			broken.Policy = map[string]filter.Action{wire.CmdPing: filter.AutoReply}
			Expect(func() { filter.New(broken) }).To(Panic())
		})
	})

	Context("when the connection is terminated", func() {
		It("should close the filter", func() {
			conn := &scripted{reads: []interface{}{wire.Ping{}}}
			f := filter.New(opts.WithAllAutoReply())
			_, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(peer.Classify(err)).To(Equal(peer.OutcomeTerminated))
			Expect(f.State()).To(Equal(filter.Closed))

			_, err = f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(errors.Is(err, peer.ErrConnectionTerminated)).To(BeTrue())
		})
	})

	Context("when a read times out", func() {
		It("should return the timeout and stay usable", func() {
			conn := &scripted{reads: []interface{}{peer.ErrTimeout, wire.Verack{}}}
			f := filter.New(opts)
			_, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(errors.Is(err, peer.ErrTimeout)).To(BeTrue())
			Expect(f.State()).To(Equal(filter.Idle))

			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Verack{}))
		})
	})

	Context("when logging every message", func() {
		It("should not change what is returned", func() {
			conn := &scripted{reads: []interface{}{wire.Ping{}, wire.Verack{}}}
			f := filter.New(opts.WithAllAutoReply().WithLogAll(true))
			msg, err := f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Verack{}))

			f.SetLogAll(false)
			conn.reads = []interface{}{wire.Ping{}, wire.Verack{}}
			msg, err = f.NextUnfiltered(context.Background(), conn, time.Second)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Verack{}))
		})
	})

	Context("when draining a live connection that floods pings", func() {
		It("should return within the budget", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			listener, port, err := tcp.ListenerWithAssignedPort(ctx, net.IPv4(127, 0, 0, 1))
			Expect(err).ToNot(HaveOccurred())
			peerOpts := peer.DefaultOptions().WithLogger(zap.NewNop())
			go tcp.ListenWithListener(ctx, listener, func(raw net.Conn) {
				conn := peer.New(raw, peerOpts)
				defer conn.Close()
				for {
					if err := conn.WriteMessage(ctx, wire.Ping{Nonce: wire.NewNonce()}); err != nil {
						return
					}
					if _, err := conn.ReadMessage(ctx, time.Second); err != nil {
						return
					}
				}
			}, nil, nil)

			conn, err := peer.Dial(ctx, fmt.Sprintf("127.0.0.1:%v", port), peerOpts)
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()

			f := filter.New(opts.WithAllAutoReply())
			msg, err := f.NextUnfiltered(ctx, conn, time.Second)
			Expect(errors.Is(err, filter.ErrBudgetExhausted)).To(BeTrue())
			Expect(msg).To(BeAssignableToTypeOf(wire.Ping{}))
		})
	})
})

var _ = Describe("Reply", func() {
	It("should echo the nonce of a ping", func() {
		nonce := wire.NewNonce()
		reply, ok := filter.Reply(wire.Ping{Nonce: nonce})
		Expect(ok).To(BeTrue())
		Expect(reply).To(Equal(wire.Pong{Nonce: nonce}))
	})

	It("should have no reply for a pong", func() {
		_, ok := filter.Reply(wire.Pong{})
		Expect(ok).To(BeFalse())
	})
})
