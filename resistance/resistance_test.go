package resistance_test

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/autotunafish/zcash/config"
	"github.com/autotunafish/zcash/conformance"
	"github.com/autotunafish/zcash/fuzz"
	"github.com/autotunafish/zcash/peer"
	"github.com/autotunafish/zcash/resistance"
	"github.com/autotunafish/zcash/testutil"
	"github.com/autotunafish/zcash/wire"
	"golang.org/x/time/rate"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

func options() resistance.Options {
	logger := zap.NewNop()
	return resistance.DefaultOptions().
		WithLogger(logger).
		WithIterations(10).
		WithWorkers(4).
		WithConnRate(rate.Inf, 1).
		WithReadTimeout(2 * time.Second).
		WithSeed(1)
}

func newNode(behaviour testutil.Behaviour) *testutil.Node {
	logger := zap.NewNop()
	return testutil.NewNode(testutil.DefaultNodeOptions().
		WithLogger(logger).
		WithBehaviour(behaviour).
		WithPeerOptions(peer.DefaultOptions().WithLogger(logger).WithReadTimeout(200 * time.Millisecond)))
}

// recordingNode records the order in which a run drives the node. Start
// records "dialled" once it returns with a wait address set, since the
// in-process node only returns after the node has connected to it.
type recordingNode struct {
	*testutil.Node
	waiting bool
	calls   []string
}

func (n *recordingNode) WaitForConnection(addr string) {
	n.waiting = true
	n.calls = append(n.calls, "wait "+addr)
	n.Node.WaitForConnection(addr)
}

func (n *recordingNode) Start(ctx context.Context) error {
	n.calls = append(n.calls, "start")
	if err := n.Node.Start(ctx); err != nil {
		return err
	}
	if n.waiting {
		n.calls = append(n.calls, "dialled")
	}
	return nil
}

func (n *recordingNode) Stop() error {
	n.calls = append(n.calls, "stop")
	return n.Node.Stop()
}

var _ = Describe("Resistance", func() {
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
	})

	AfterEach(func() {
		cancel()
	})

	Context("when the node drops misbehaving peers", func() {
		It("should resist every corpus", func() {
			n := newNode(testutil.Strict)
			Expect(resistance.Run(ctx, n, options())).To(Succeed())
		})

		It("should resist a payload that completes the handshake", func() {
			n := newNode(testutil.Strict)
			Expect(n.Start(ctx)).To(Succeed())
			defer n.Stop()

			frame, err := wire.EncodeMessage(wire.NewVersion(n.Addr(), n.Addr()), wire.RegtestMagic)
			Expect(err).ToNot(HaveOccurred())
			Expect(resistance.Probe(ctx, n.Addr().String(), frame, options())).To(Succeed())
			Expect(n.Handshakes()).To(Equal(1))
		})
	})

	Context("when the node goes silent after a malformed frame", func() {
		It("should report every payload", func() {
			corpus := fuzz.Corpus{
				Name: "bad checksum",
				Generate: func(r *rand.Rand) []byte {
					return fuzz.WithBadChecksum(r, wire.RegtestMagic)
				},
			}
			opts := options().
				WithIterations(3).
				WithReadTimeout(200 * time.Millisecond).
				WithCorpora(corpus)

			err := resistance.Run(ctx, newNode(testutil.Chatty), opts)
			Expect(errors.Is(err, peer.ErrTimeout)).To(BeTrue())

			violations := conformance.Violations(err)
			Expect(violations).To(HaveLen(3))
			for _, violation := range violations {
				Expect(violation.Scenario).To(Equal(resistance.Scenario + ": bad checksum"))
				Expect(violation.Kind).To(Equal(peer.OutcomeTimeout.String()))
			}
		})
	})

	Context("when waiting for the node to connect", func() {
		It("should only send payloads once the node has dialled the wait address", func() {
			addr, err := config.Default().NewLocalAddr()
			Expect(err).ToNot(HaveOccurred())

			n := &recordingNode{Node: newNode(testutil.Strict)}
			opts := options().WithIterations(2).WithWaitForConnection(addr.String())
			Expect(resistance.Run(ctx, n, opts)).To(Succeed())
			Expect(n.calls).To(Equal([]string{"wait " + addr.String(), "start", "dialled", "stop"}))
		})

		It("should not wait without a wait address", func() {
			n := &recordingNode{Node: newNode(testutil.Strict)}
			Expect(resistance.Run(ctx, n, options().WithIterations(1))).To(Succeed())
			Expect(n.calls).To(Equal([]string{"start", "stop"}))
		})
	})

	Context("when there are more workers than CPUs", func() {
		It("should run them concurrently", func() {
			workers := 4 * runtime.NumCPU()
			inFlight, peak := int64(0), int64(0)
			release := make(chan struct{})
			corpus := fuzz.Corpus{
				Name: "blocking",
				Generate: func(r *rand.Rand) []byte {
					now := atomic.AddInt64(&inFlight, 1)
					for {
						old := atomic.LoadInt64(&peak)
						if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
							break
						}
					}
					if now == int64(workers) {
						close(release)
					}
					<-release
					return []byte{0}
				},
			}
			n := newNode(testutil.Strict)
			opts := options().WithIterations(workers).WithWorkers(workers).WithCorpora(corpus)
			Expect(resistance.Run(ctx, n, opts)).To(Succeed())
			Expect(atomic.LoadInt64(&peak)).To(Equal(int64(workers)))
		})
	})

	Context("when the node is not running", func() {
		It("should fail to probe", func() {
			opts := options().WithPeerOptions(peer.DefaultOptions().WithLogger(zap.NewNop()).WithDialTimeout(200 * time.Millisecond))
			Expect(resistance.Probe(ctx, "127.0.0.1:1", []byte{0}, opts)).ToNot(Succeed())
		})
	})

	Context("when the context is cancelled", func() {
		It("should stop early", func() {
			cancel()
			err := resistance.RunCorpus(ctx, "127.0.0.1:1", fuzz.Corpora(wire.RegtestMagic)[0], options())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(conformance.Violations(err)).To(BeEmpty())
		})
	})

	Context("when using the defaults", func() {
		It("should send every corpus", func() {
			opts := resistance.DefaultOptions()
			Expect(opts.Corpora).To(HaveLen(len(fuzz.Corpora(wire.RegtestMagic))))
			Expect(opts.Iterations).To(Equal(resistance.DefaultIterations))
			Expect(opts.Reads).To(Equal(resistance.DefaultReads))
		})
	})
})
