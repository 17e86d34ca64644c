package node_test

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/autotunafish/zcash/config"
	"github.com/autotunafish/zcash/node"
	"github.com/sirupsen/logrus/hooks/test"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func helperConfig(extra ...string) config.Config {
	cfg := config.Default()
	cfg.StartCommand = os.Args[0]
	cfg.Args = append([]string{"-test.run=TestHelperProcess", "--"}, extra...)
	return cfg
}

func helperOptions() (node.Options, *test.Hook) {
	output, hook := test.NewNullLogger()
	return node.DefaultOptions().
		WithOutput(output).
		WithEnv("GO_WANT_HELPER_PROCESS=1").
		WithStopTimeout(5 * time.Second), hook
}

func lines(hook *test.Hook) []string {
	entries := hook.AllEntries()
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Message
	}
	return lines
}

var _ = Describe("Process", func() {
	Context("when started without peers", func() {
		It("should listen on its address until stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			opts, hook := helperOptions()
			process := node.NewProcess(helperConfig(), opts)
			Expect(process.Addr()).To(BeNil())
			Expect(process.Start(ctx)).To(Succeed())
			defer process.Stop()

			addr := process.Addr()
			Expect(addr).ToNot(BeNil())
			conn, err := net.Dial("tcp", addr.String())
			Expect(err).ToNot(HaveOccurred())
			conn.Close()

			Expect(process.Stop()).To(Succeed())
			Expect(lines(hook)).To(ContainElement("listening on " + addr.String()))
			Expect(lines(hook)).To(ContainElement("interrupted"))

			_, err = net.DialTimeout("tcp", addr.String(), time.Second)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when waiting for a connection", func() {
		It("should return once the process has connected", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			var mu sync.Mutex
			accepted := 0
			go func() {
				for {
					conn, err := listener.Accept()
					if err != nil {
						return
					}
					mu.Lock()
					accepted++
					mu.Unlock()
					conn.Close()
				}
			}()
			defer listener.Close()

			waitAddr, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			wait := waitAddr.Addr().String()
			Expect(waitAddr.Close()).To(Succeed())

			opts, hook := helperOptions()
			process := node.NewProcess(helperConfig(), opts)
			process.InitialPeers(listener.Addr().String())
			process.WaitForConnection(wait)
			Expect(process.Start(ctx)).To(Succeed())
			defer process.Stop()

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return accepted
			}).Should(Equal(1))
			Eventually(func() []string { return lines(hook) }).Should(ContainElement("connected to " + wait))
		})
	})

	Context("when the process exits early", func() {
		It("should fail to start, and forward its output", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			opts, hook := helperOptions()
			process := node.NewProcess(helperConfig("-exit"), opts)
			err := process.Start(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("exited early"))

			var stderr []string
			for _, entry := range hook.AllEntries() {
				if entry.Data["stream"] == "stderr" {
					stderr = append(stderr, entry.Message)
				}
			}
			Expect(stderr).To(ContainElement("exiting"))
		})
	})

	Context("when misused", func() {
		It("should not start twice", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			opts, _ := helperOptions()
			process := node.NewProcess(helperConfig(), opts)
			Expect(process.Start(ctx)).To(Succeed())
			defer process.Stop()

			err := process.Start(ctx)
			Expect(errors.Is(err, node.ErrBadState)).To(BeTrue())
		})

		It("should panic when configured after starting", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			opts, _ := helperOptions()
			process := node.NewProcess(helperConfig(), opts)
			Expect(process.Start(ctx)).To(Succeed())
			defer process.Stop()

			Expect(func() { process.InitialPeers("127.0.0.1:1") }).To(Panic())
			Expect(func() { process.WaitForConnection("127.0.0.1:1") }).To(Panic())
		})

		It("should do nothing when stopped before starting", func() {
			opts, _ := helperOptions()
			process := node.NewProcess(helperConfig(), opts)
			Expect(process.Stop()).To(Succeed())
		})

		It("should refuse to start without a listen argument", func() {
			cfg := helperConfig()
			cfg.ListenArg = ""
			opts, _ := helperOptions()
			err := node.NewProcess(cfg, opts).Start(context.Background())
			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		})
	})
})

var _ = Describe("State", func() {
	It("should have a name for every state", func() {
		Expect(node.NotStarted.String()).To(Equal("not started"))
		Expect(node.Running.String()).To(Equal("running"))
		Expect(node.Stopped.String()).To(Equal("stopped"))
		Expect(strings.HasPrefix(node.State(9).String(), "unknown")).To(BeTrue())
	})
})
