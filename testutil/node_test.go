package testutil_test

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/autotunafish/zcash/node"
	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/testutil"
	"github.com/autotunafish/zcash/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

func peerOptions() peer.Options {
	return peer.DefaultOptions().WithLogger(zap.NewNop()).WithReadTimeout(time.Second)
}

func newNode(behaviour testutil.Behaviour) *testutil.Node {
	return testutil.NewNode(testutil.DefaultNodeOptions().
		WithLogger(zap.NewNop()).
		WithBehaviour(behaviour))
}

func handshake(ctx context.Context, conn *peer.Conn) {
	Expect(conn.WriteMessage(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr()))).To(Succeed())
	msg, err := conn.ReadMessage(ctx, 0)
	Expect(err).ToNot(HaveOccurred())
	Expect(msg).To(BeAssignableToTypeOf(wire.Version{}))
	msg, err = conn.ReadMessage(ctx, 0)
	Expect(err).ToNot(HaveOccurred())
	Expect(msg).To(Equal(wire.Verack{}))
	Expect(conn.WriteMessage(ctx, wire.Verack{})).To(Succeed())
}

var _ = Describe("Node", func() {
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	Context("when handshaken", func() {
		It("should answer pings and address requests", func() {
			n := newNode(testutil.Strict)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			handshake(ctx, conn)

			nonce := wire.NewNonce()
			Expect(conn.WriteMessage(ctx, wire.Ping{Nonce: nonce})).To(Succeed())
			msg, err := conn.ReadMessage(ctx, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Pong{Nonce: nonce}))

			Expect(conn.WriteMessage(ctx, wire.GetAddr{})).To(Succeed())
			msg, err = conn.ReadMessage(ctx, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg.Command()).To(Equal(wire.CmdAddr))
			Expect(n.Handshakes()).To(Equal(1))
		})

		It("should drop idle peers", func() {
			logger := zap.NewNop()
			n := testutil.NewNode(testutil.DefaultNodeOptions().
				WithLogger(logger).
				WithPeerOptions(peer.DefaultOptions().WithLogger(logger).WithReadTimeout(100 * time.Millisecond)))
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			_, err = conn.ReadMessage(ctx, time.Second)
			Expect(peer.Classify(err)).To(Equal(peer.OutcomeTerminated))
		})
	})

	Context("when sent a message before the version", func() {
		It("should drop the peer if strict", func() {
			n := newNode(testutil.Strict)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			Expect(conn.WriteMessage(ctx, wire.Ping{})).To(Succeed())
			_, err = conn.ReadMessage(ctx, 0)
			Expect(peer.Classify(err)).To(Equal(peer.OutcomeTerminated))
			Eventually(n.Dropped).Should(Equal(1))
		})

		It("should ignore the message if lenient", func() {
			n := newNode(testutil.Lenient)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			Expect(conn.WriteMessage(ctx, wire.Ping{})).To(Succeed())
			handshake(ctx, conn)
		})

		It("should reply to the message if chatty", func() {
			n := newNode(testutil.Chatty)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			Expect(conn.WriteMessage(ctx, wire.Ping{})).To(Succeed())
			msg, err := conn.ReadMessage(ctx, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Pong{}))
		})
	})

	Context("when sent a malformed frame", func() {
		It("should drop the peer", func() {
			n := newNode(testutil.Lenient)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			conn, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			Expect(conn.WriteRaw(ctx, make([]byte, wire.HeaderLen))).To(Succeed())
			_, err = conn.ReadMessage(ctx, 0)
			Expect(peer.Classify(err)).To(Equal(peer.OutcomeTerminated))
			Eventually(n.Dropped).Should(Equal(1))
		})
	})

	Context("when given initial peers", func() {
		It("should dial them and send a version first", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			defer listener.Close()

			n := newNode(testutil.Strict)
			n.InitialPeers(listener.Addr().String())
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			raw, err := listener.Accept()
			Expect(err).ToNot(HaveOccurred())
			conn := peer.New(raw, peerOptions())
			defer conn.Close()

			msg, err := conn.ReadMessage(ctx, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg.Command()).To(Equal(wire.CmdVersion))
			Expect(conn.WriteMessage(ctx, wire.NewVersion(conn.RemoteAddr(), conn.LocalAddr()))).To(Succeed())
			msg, err = conn.ReadMessage(ctx, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msg).To(Equal(wire.Verack{}))
		})

		It("should wait for a connection if asked", func() {
			free, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			addr := free.Addr().String()
			Expect(free.Close()).To(Succeed())

			n := newNode(testutil.Strict)
			n.WaitForConnection(addr)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()
			Expect(n.Addr()).ToNot(BeNil())
		})
	})

	Context("when limiting connections", func() {
		It("should close connections beyond the maximum", func() {
			n := testutil.NewNode(testutil.DefaultNodeOptions().
				WithLogger(zap.NewNop()).
				WithMaxConns(1))
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			first, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer first.Close()
			handshake(ctx, first)

			second, err := peer.Dial(ctx, n.Addr().String(), peerOptions())
			Expect(err).ToNot(HaveOccurred())
			defer second.Close()
			_, err = second.ReadMessage(ctx, 0)
			Expect(peer.Classify(err)).To(Equal(peer.OutcomeTerminated))
		})
	})

	Context("when misused", func() {
		It("should follow the node lifecycle", func() {
			n := newNode(testutil.Strict)
			Expect(n.Addr()).To(BeNil())
			Expect(n.Stop()).To(Succeed())
			Expect(n.Start(ctx)).To(Succeed())
			Expect(errors.Is(n.Start(ctx), node.ErrBadState)).To(BeTrue())
			Expect(func() { n.InitialPeers() }).To(Panic())
			Expect(n.Stop()).To(Succeed())
			Expect(n.Stop()).To(Succeed())
		})
	})
})

var _ = Describe("Conn pair", func() {
	It("should carry messages both ways", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, server, stop, err := testutil.NewConnPair(peerOptions())
		Expect(err).ToNot(HaveOccurred())
		defer stop()

		Expect(client.WriteMessage(ctx, wire.Ping{Nonce: wire.Nonce{1}})).To(Succeed())
		msg, err := server.ReadMessage(ctx, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(msg).To(Equal(wire.Ping{Nonce: wire.Nonce{1}}))

		Expect(server.WriteMessage(ctx, wire.Pong{Nonce: wire.Nonce{1}})).To(Succeed())
		msg, err = client.ReadMessage(ctx, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(msg).To(Equal(wire.Pong{Nonce: wire.Nonce{1}}))
	})
})
