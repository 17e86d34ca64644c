// Package config loads the description of the node under test: which
// implementation it is, how to start it, and which local address the harness
// binds its own listeners to.
//
// The configuration is a JSON file:
//
//	{
//	  "kind": "zcashd",
//	  "path": "/home/user/zcash",
//	  "start_command": "./src/zcashd",
//	  "args": ["-regtest", "-datadir=/tmp/zcash-harness"],
//	  "network": "regtest",
//	  "local_ip": "127.0.0.1"
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/autotunafish/zcash/wire"
)

// EnvConfigPath names the environment variable that overrides the default
// configuration path.
const EnvConfigPath = "ZCASH_HARNESS_CONFIG"

// DefaultConfigPath is relative to the home directory of the user.
const DefaultConfigPath = ".zcash-harness/config.json"

// Kind of node implementation.
type Kind string

// Enumeration of node kinds.
const (
	Zcashd = Kind("zcashd")
	Zebra  = Kind("zebra")
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

// Config describes the node under test.
type Config struct {
	Kind         Kind     `json:"kind"`
	Path         string   `json:"path"`
	StartCommand string   `json:"start_command"`
	Args         []string `json:"args"`
	Network      string   `json:"network"`
	LocalIP      string   `json:"local_ip"`

	// ListenArg and PeerArg are format strings for the arguments that tell
	// the node which address to listen on, and which peers to dial. They
	// default to the zcashd flags.
	ListenArg string `json:"listen_arg"`
	PeerArg   string `json:"peer_arg"`
}

// Default returns the configuration of a zcashd node on regtest.
func Default() Config {
	return Config{
		Kind:         Zcashd,
		StartCommand: "zcashd",
		Args:         []string{"-regtest", "-printtoconsole", "-listen=1", "-dnsseed=0"},
		Network:      "regtest",
		LocalIP:      "127.0.0.1",
		ListenArg:    "-bind=%v",
		PeerArg:      "-addnode=%v",
	}
}

// Load reads a configuration file. Fields missing from the file keep the
// values from Default.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a configuration from r. Fields missing from r keep the values
// from Default.
func Decode(r io.Reader) (Config, error) {
	config := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadDefault reads the configuration file named by $ZCASH_HARNESS_CONFIG,
// or ~/.zcash-harness/config.json if the variable is not set.
func LoadDefault() (Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("finding home directory: %w", err)
	}
	return Load(filepath.Join(home, DefaultConfigPath))
}

// Validate returns an error wrapping ErrInvalidConfig if a field is invalid.
func (config Config) Validate() error {
	switch config.Kind {
	case Zcashd, Zebra:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, config.Kind)
	}
	if config.StartCommand == "" {
		return fmt.Errorf("%w: empty start command", ErrInvalidConfig)
	}
	if net.ParseIP(config.LocalIP) == nil {
		return fmt.Errorf("%w: bad local ip %q", ErrInvalidConfig, config.LocalIP)
	}
	if _, err := config.Magic(); err != nil {
		return err
	}
	if config.ListenArg != "" && !strings.Contains(config.ListenArg, "%v") {
		return fmt.Errorf("%w: listen arg %q has no %%v", ErrInvalidConfig, config.ListenArg)
	}
	if config.PeerArg != "" && !strings.Contains(config.PeerArg, "%v") {
		return fmt.Errorf("%w: peer arg %q has no %%v", ErrInvalidConfig, config.PeerArg)
	}
	return nil
}

// Magic returns the network magic of the configured network.
func (config Config) Magic() (wire.Magic, error) {
	switch config.Network {
	case "mainnet":
		return wire.MainnetMagic, nil
	case "testnet":
		return wire.TestnetMagic, nil
	case "regtest":
		return wire.RegtestMagic, nil
	default:
		return wire.Magic{}, fmt.Errorf("%w: unknown network %q", ErrInvalidConfig, config.Network)
	}
}

// NewLocalAddr returns an address on the local IP with a port that was free
// when it was returned.
func (config Config) NewLocalAddr() (*net.TCPAddr, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(config.LocalIP, "0"))
	if err != nil {
		return nil, fmt.Errorf("finding free port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr), nil
}
