package config_test

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/autotunafish/zcash/config"
	"github.com/autotunafish/zcash/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	Context("when decoding a partial file", func() {
		It("should keep the defaults for missing fields", func() {
			cfg, err := config.Decode(strings.NewReader(`{"kind": "zebra", "start_command": "zebrad", "network": "testnet"}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Kind).To(Equal(config.Zebra))
			Expect(cfg.StartCommand).To(Equal("zebrad"))
			Expect(cfg.LocalIP).To(Equal("127.0.0.1"))
			magic, err := cfg.Magic()
			Expect(err).ToNot(HaveOccurred())
			Expect(magic).To(Equal(wire.TestnetMagic))
		})
	})

	Context("when decoding an invalid file", func() {
		It("should reject unknown kinds", func() {
			_, err := config.Decode(strings.NewReader(`{"kind": "bitcoind"}`))
			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		})

		It("should reject unknown networks", func() {
			_, err := config.Decode(strings.NewReader(`{"network": "signet"}`))
			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		})

		It("should reject unknown fields", func() {
			_, err := config.Decode(strings.NewReader(`{"colour": "blue"}`))
			Expect(err).To(HaveOccurred())
		})

		It("should reject argument templates without a placeholder", func() {
			_, err := config.Decode(strings.NewReader(`{"peer_arg": "-addnode"}`))
			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		})
	})

	Context("when loading the default file", func() {
		It("should honour the environment variable", func() {
			dir, err := os.MkdirTemp("", "zcash-harness")
			Expect(err).ToNot(HaveOccurred())
			defer os.RemoveAll(dir)
			path := filepath.Join(dir, "config.json")
			Expect(os.WriteFile(path, []byte(`{"path": "/opt/zcash"}`), 0o600)).To(Succeed())

			old, ok := os.LookupEnv(config.EnvConfigPath)
			Expect(os.Setenv(config.EnvConfigPath, path)).To(Succeed())
			defer func() {
				if ok {
					os.Setenv(config.EnvConfigPath, old)
				} else {
					os.Unsetenv(config.EnvConfigPath)
				}
			}()

			cfg, err := config.LoadDefault()
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Path).To(Equal("/opt/zcash"))
		})

		It("should fail when the file does not exist", func() {
			_, err := config.Load(filepath.Join(os.TempDir(), "does-not-exist", "config.json"))
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})
	})

	Context("when minting local addresses", func() {
		It("should return distinct free ports on the local ip", func() {
			cfg := config.Default()
			a, err := cfg.NewLocalAddr()
			Expect(err).ToNot(HaveOccurred())
			Expect(a.IP.Equal(net.IPv4(127, 0, 0, 1))).To(BeTrue())
			Expect(a.Port).ToNot(BeZero())

			listener, err := net.Listen("tcp", a.String())
			Expect(err).ToNot(HaveOccurred())
			defer listener.Close()
			b, err := cfg.NewLocalAddr()
			Expect(err).ToNot(HaveOccurred())
			Expect(b.Port).ToNot(Equal(a.Port))
		})
	})
})
