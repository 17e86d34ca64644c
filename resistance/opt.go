package resistance

import (
	"time"

	"github.com/autotunafish/zcash/filter"
	"github.com/autotunafish/zcash/fuzz"
	"github.com/autotunafish/zcash/peer"
	"golang.org/x/time/rate"

	"go.uber.org/zap"
)

// Default values for Options.
var (
	DefaultIterations  = 1000
	DefaultWorkers     = 8
	DefaultConnRate    = rate.Limit(100)
	DefaultConnBurst   = 10
	DefaultReadTimeout = 5 * time.Second
	DefaultReads       = 10
)

// Options parameterise a run.
type Options struct {
	Logger *zap.Logger
	Peer   peer.Options
	Filter filter.Options
	// Iterations is the number of payloads sent from each corpus.
	Iterations int
	Workers    int
	// ConnRate and ConnBurst pace the connections opened to the node.
	ConnRate  rate.Limit
	ConnBurst int
	// ReadTimeout bounds each filtered read, and Reads is the number of
	// filtered reads after each payload.
	ReadTimeout time.Duration
	Reads       int
	// Seed for the payload of iteration i is Seed+i.
	Seed    int64
	Corpora []fuzz.Corpus
	// WaitAddr, when set, is passed to the node's WaitForConnection so that
	// the run only begins once the node has dialled it.
	WaitAddr string
}

func DefaultOptions() Options {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	peerOpts := peer.DefaultOptions().WithLogger(logger)
	return Options{
		Logger:      logger,
		Peer:        peerOpts,
		Filter:      filter.DefaultOptions().WithLogger(logger).WithAllAutoReply().WithLogAll(true),
		Iterations:  DefaultIterations,
		Workers:     DefaultWorkers,
		ConnRate:    DefaultConnRate,
		ConnBurst:   DefaultConnBurst,
		ReadTimeout: DefaultReadTimeout,
		Reads:       DefaultReads,
		Seed:        time.Now().UnixNano(),
		Corpora:     fuzz.Corpora(peerOpts.Magic),
	}
}

// WithLogger sets the logger of the run, its connections, and its filters.
func (opts Options) WithLogger(logger *zap.Logger) Options {
	opts.Logger = logger
	opts.Peer.Logger = logger
	opts.Filter.Logger = logger
	return opts
}

// WithPeerOptions sets the connection options. The corpora are rebuilt for
// the magic of the new options.
func (opts Options) WithPeerOptions(peerOpts peer.Options) Options {
	opts.Peer = peerOpts
	opts.Corpora = fuzz.Corpora(peerOpts.Magic)
	return opts
}

func (opts Options) WithFilterOptions(filterOpts filter.Options) Options {
	opts.Filter = filterOpts
	return opts
}

func (opts Options) WithIterations(iterations int) Options {
	opts.Iterations = iterations
	return opts
}

func (opts Options) WithWorkers(workers int) Options {
	opts.Workers = workers
	return opts
}

func (opts Options) WithConnRate(r rate.Limit, b int) Options {
	opts.ConnRate = r
	opts.ConnBurst = b
	return opts
}

func (opts Options) WithReadTimeout(timeout time.Duration) Options {
	opts.ReadTimeout = timeout
	return opts
}

func (opts Options) WithReads(reads int) Options {
	opts.Reads = reads
	return opts
}

func (opts Options) WithSeed(seed int64) Options {
	opts.Seed = seed
	return opts
}

func (opts Options) WithCorpora(corpora ...fuzz.Corpus) Options {
	opts.Corpora = append([]fuzz.Corpus{}, corpora...)
	return opts
}

func (opts Options) WithWaitForConnection(addr string) Options {
	opts.WaitAddr = addr
	return opts
}
