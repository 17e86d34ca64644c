package node

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/autotunafish/zcash/config"
	"github.com/autotunafish/zcash/tcp"
	"github.com/sirupsen/logrus"

	"go.uber.org/zap"
)

// Process is a Node that runs as a child process. The command line is built
// from the configuration: the configured arguments, then the listen argument,
// then one peer argument per initial peer.
type Process struct {
	opts   Options
	config config.Config

	mu       deadlock.Mutex
	state    State
	peers    []string
	waitAddr string
	addr     *net.TCPAddr
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
}

// NewProcess returns a Process that has not been started.
func NewProcess(cfg config.Config, opts Options) *Process {
	if opts.Logger == nil {
		panic("node: nil logger")
	}
	return &Process{
		opts:   opts,
		config: cfg,
	}
}

func (p *Process) InitialPeers(addrs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != NotStarted {
		panic(fmt.Sprintf("node: setting initial peers while %v", p.state))
	}
	p.peers = append([]string{}, addrs...)
}

func (p *Process) WaitForConnection(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != NotStarted {
		panic(fmt.Sprintf("node: setting wait address while %v", p.state))
	}
	p.waitAddr = addr
}

// Start the child process. If a wait address was set, Start returns once the
// child connects to it. Otherwise, it returns once the child accepts a
// connection on its own address. If the child is not ready before the
// context is done, it is killed.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != NotStarted {
		return fmt.Errorf("%w: starting while %v", ErrBadState, p.state)
	}
	if p.config.ListenArg == "" {
		return fmt.Errorf("%w: no listen arg for %v", config.ErrInvalidConfig, p.config.Kind)
	}

	addr, err := p.config.NewLocalAddr()
	if err != nil {
		return err
	}

	peers := append([]string{}, p.peers...)
	var listener net.Listener
	if p.waitAddr != "" {
		if listener, err = new(net.ListenConfig).Listen(ctx, "tcp", p.waitAddr); err != nil {
			return fmt.Errorf("listening on %v: %w", p.waitAddr, err)
		}
		defer listener.Close()
		peers = append(peers, p.waitAddr)
	}
	if len(peers) > 0 && p.config.PeerArg == "" {
		return fmt.Errorf("%w: no peer arg for %v", config.ErrInvalidConfig, p.config.Kind)
	}

	args := append([]string{}, p.config.Args...)
	args = append(args, fmt.Sprintf(p.config.ListenArg, addr))
	for _, peer := range peers {
		args = append(args, fmt.Sprintf(p.config.PeerArg, peer))
	}

	cmd := exec.Command(p.config.StartCommand, args...)
	cmd.Dir = p.config.Path
	cmd.Env = append(os.Environ(), p.opts.Env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("piping stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("piping stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %v: %w", p.config.StartCommand, err)
	}

	p.opts.Logger.Info("started", zap.String("kind", string(p.config.Kind)), zap.Int("pid", cmd.Process.Pid), zap.Stringer("addr", addr), zap.Strings("peers", peers))
	output := p.opts.Output
	if output == nil {
		output = logrus.New()
	}
	output = output.WithField("pid", cmd.Process.Pid)
	forwarded := make(chan struct{}, 2)
	go forward(output.WithField("stream", "stdout"), stdout, forwarded)
	go forward(output.WithField("stream", "stderr"), stderr, forwarded)

	done := make(chan struct{})
	go func() {
		<-forwarded
		<-forwarded
		p.waitErr = cmd.Wait()
		close(done)
	}()

	p.cmd = cmd
	p.done = done
	p.addr = addr
	p.state = Running

	if err := p.waitUntilReady(ctx, listener); err != nil {
		p.stop()
		return fmt.Errorf("waiting for node: %w", err)
	}
	return nil
}

func (p *Process) waitUntilReady(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if listener != nil {
		stop := context.AfterFunc(ctx, func() {
			listener.Close()
		})
		defer stop()
		conn, err := listener.Accept()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.exitErr(ctxErr)
			}
			return err
		}
		p.opts.Logger.Debug("node connected", zap.Stringer("remote", conn.RemoteAddr()))
		return conn.Close()
	}

	conn, err := tcp.Connect(ctx, p.addr.String(), func(err error) {
		p.opts.Logger.Debug("node not ready", zap.Error(err))
	}, p.opts.ReadyTimeout)
	if err != nil {
		return p.exitErr(err)
	}
	return conn.Close()
}

// exitErr reports the exit of the child, if it has exited, instead of err.
func (p *Process) exitErr(err error) error {
	select {
	case <-p.done:
		return fmt.Errorf("exited early: %v", p.waitErr)
	default:
		return err
	}
}

func (p *Process) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.addr == nil {
		return nil
	}
	return p.addr
}

// Stop interrupts the child, and kills it if it has not exited within the stop
// timeout.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Running {
		return nil
	}
	return p.stop()
}

func (p *Process) stop() error {
	p.state = Stopped

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.opts.Logger.Warn("interrupting", zap.Error(err))
	}
	timeout := p.opts.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	select {
	case <-p.done:
	case <-time.After(timeout):
		p.opts.Logger.Warn("killing", zap.Int("pid", p.cmd.Process.Pid))
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("killing node: %w", err)
		}
		<-p.done
	}
	p.opts.Logger.Info("stopped", zap.NamedError("exit", p.waitErr))
	return nil
}

func forward(output logrus.FieldLogger, r io.Reader, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		output.Info(scanner.Text())
	}
}
