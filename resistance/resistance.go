// Package resistance sends adversarial bytes to a node before the handshake,
// and checks that the node survives them. For every payload the harness opens
// a fresh connection, writes the payload, and then reads through a filter
// that keeps the connection alive. The node resists the payload if it drops
// the connection, or if it keeps talking. It fails if it goes silent without
// dropping the connection, or if it sends something that cannot be parsed.
package resistance

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/autotunafish/zcash/conformance"
	"github.com/autotunafish/zcash/filter"
	"github.com/autotunafish/zcash/fuzz"
	"github.com/autotunafish/zcash/node"
	"github.com/autotunafish/zcash/peer"
	"github.com/renproject/phi"
	"golang.org/x/time/rate"

	"go.uber.org/zap"
)

// Scenario is the prefix of the scenario name of every Violation.
const Scenario = "resistance"

// Run starts the node, sends it every corpus in turn, and stops it. Failures
// are returned as *conformance.Violation errors, joined. With a WaitAddr, the
// node is started with WaitForConnection.
func Run(ctx context.Context, n node.Node, opts Options) error {
	if opts.WaitAddr != "" {
		n.WaitForConnection(opts.WaitAddr)
	}
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer func() {
		if err := n.Stop(); err != nil {
			opts.Logger.Error("stopping node", zap.Error(err))
		}
	}()

	addr := n.Addr().String()
	var errs []error
	for _, corpus := range opts.Corpora {
		if err := RunCorpus(ctx, addr, corpus, opts); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

// RunCorpus sends Iterations payloads from one corpus to a running node at
// addr, from a pool of Workers goroutines. If the context is done before every
// payload was sent, the context error is joined with the failures so far.
func RunCorpus(ctx context.Context, addr string, corpus fuzz.Corpus, opts Options) error {
	logger := opts.Logger.With(zap.String("corpus", corpus.Name))
	limiter := rate.NewLimiter(opts.ConnRate, opts.ConnBurst)

	iterations := make(chan int, opts.Iterations)
	for i := 0; i < opts.Iterations; i++ {
		iterations <- i
	}
	close(iterations)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	violations := make([]error, opts.Iterations)
	failed := atomic.Int64{}
	phi.ParForAll(workers, func(_ int) {
		for i := range iterations {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			r := rand.New(rand.NewSource(opts.Seed + int64(i)))
			if err := Probe(ctx, addr, corpus.Generate(r), opts); err != nil {
				if ctx.Err() != nil {
					return
				}
				violations[i] = &conformance.Violation{
					Scenario: Scenario + ": " + corpus.Name,
					Case:     fmt.Sprintf("seed %d", opts.Seed+int64(i)),
					Kind:     peer.Classify(err).String(),
					Err:      err,
				}
				failed.Add(1)
				logger.Warn("node failed", zap.Int("iteration", i), zap.Error(err))
			}
		}
	})
	if err := ctx.Err(); err != nil {
		logger.Warn("interrupted", zap.Int64("failed", failed.Load()), zap.Error(err))
		return errors.Join(append(violations, err)...)
	}
	logger.Info("done", zap.Int("iterations", opts.Iterations), zap.Int64("failed", failed.Load()))
	return errors.Join(violations...)
}

// Probe sends one payload on a fresh connection, and reads until the node
// drops the connection, times out, or has been read from Reads times. The
// payload is written before the handshake; write errors are ignored, because
// the node may drop the connection before the whole payload is written.
func Probe(ctx context.Context, addr string, payload []byte, opts Options) error {
	conn, err := peer.Dial(ctx, addr, opts.Peer)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger := conn.Logger().With(zap.Int("len", len(payload)))

	if err := conn.WriteRaw(ctx, payload); err != nil {
		logger.Debug("writing payload", zap.Error(err))
	}

	f := filter.New(opts.Filter)
	for i := 0; i < opts.Reads; i++ {
		msg, err := f.NextUnfiltered(ctx, conn, opts.ReadTimeout)
		if err == nil {
			logger.Debug("unfiltered", zap.String("command", msg.Command()))
			continue
		}
		if errors.Is(err, filter.ErrBudgetExhausted) {
			continue
		}
		if peer.Classify(err) == peer.OutcomeTerminated {
			logger.Debug("node dropped connection", zap.Int("reads", i))
			return nil
		}
		return err
	}
	return nil
}
