// Package tcp listens for and dials raw TCP connections. It knows nothing
// about the wire format; connections are handed to callbacks that own them
// until they return.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/autotunafish/zcash/policy"
)

// ListenWithListener accepts connections from remote peers until the context
// is done, and closes the listener when it is. The allow function will be used
// to control the acceptance/rejection of connection attempts, and can be used
// to implement maximum connection limits, per-IP rate-limiting, and so on.
// This function spawns all accepted connections into their own background
// goroutines that run the handle function, and then clean-up the connection.
// This function blocks until the context is done.
func ListenWithListener(ctx context.Context, listener net.Listener, handle func(net.Conn), handleErr func(error), allow policy.Allow) error {
	if handle == nil {
		return fmt.Errorf("nil handle function")
	}

	if handleErr == nil {
		handleErr = func(err error) {}
	}

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			handleErr(fmt.Errorf("close listener: %w", err))
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			handleErr(fmt.Errorf("accept connection: %w", err))
			continue
		}

		cleanup := policy.Cleanup(nil)
		if allow != nil {
			if err, cleanup = allow(conn); err != nil {
				handleErr(fmt.Errorf("filter %v: %w", conn.RemoteAddr(), err))
				if cleanup != nil {
					cleanup()
				}
				if err := conn.Close(); err != nil {
					handleErr(fmt.Errorf("close connection: %w", err))
				}
				continue
			}
		}

		go func() {
			defer func() {
				if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
					handleErr(fmt.Errorf("close connection: %w", err))
				}
			}()
			defer func() {
				if cleanup != nil {
					cleanup()
				}
			}()
			handle(conn)
		}()
	}
}

// ListenerWithAssignedPort binds a listener to an ephemeral port on the given
// IP address, and returns the listener along with the port that was assigned.
func ListenerWithAssignedPort(ctx context.Context, ip net.IP) (net.Listener, int, error) {
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", net.JoinHostPort(ip.String(), "0"))
	if err != nil {
		return nil, 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return listener, port, nil
}

// Connect dials a remote peer until a connection is successfully established,
// or until the context is done. The timeout function bounds each attempt, and
// failed attempts wait out the remainder of their timeout before retrying. The
// caller owns the returned connection.
func Connect(ctx context.Context, address string, handleErr func(error), timeout policy.Timeout) (net.Conn, error) {
	dialer := new(net.Dialer)

	if handleErr == nil {
		handleErr = func(error) {}
	}

	if timeout == nil {
		timeout = policy.ConstantTimeout(time.Second)
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dialCtx, dialCancel := context.WithTimeout(ctx, timeout(attempt))
		conn, err := dialer.DialContext(dialCtx, "tcp", address)
		if err != nil {
			handleErr(err)
			<-dialCtx.Done()
			dialCancel()
			continue
		}
		dialCancel()
		return conn, nil
	}
}

// Dial a remote peer until a connection is successfully established, or until
// the context is done. This function blocks until the connection is handled
// (and the handle function returns), and then closes the connection.
func Dial(ctx context.Context, address string, handle func(net.Conn), handleErr func(error), timeout policy.Timeout) error {
	if handle == nil {
		return fmt.Errorf("nil handle function")
	}

	conn, err := Connect(ctx, address, handleErr, timeout)
	if err != nil {
		return err
	}

	return func() (err error) {
		defer func() {
			if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
				err = closeErr
			}
		}()
		handle(conn)
		return nil
	}()
}
