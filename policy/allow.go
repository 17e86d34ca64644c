package policy

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a connection is dropped because its remote
// IP address has exceeded its rate limit for connection attempts.
var ErrRateLimited = errors.New("rate limited")

// ErrMaxConnectionsExceeded is returned when a connection is dropped because
// the maximum number of concurrent connections has been reached.
var ErrMaxConnectionsExceeded = errors.New("max connections exceeded")

// Allow is a function that filters connections. If an error is returned, the
// connection is filtered and closed. Otherwise, it is maintained. A clean-up
// function is also returned. This function is called after the connection is
// closed, regardless of whether the closure was caused by filtering or normal
// control-flow.
type Allow func(net.Conn) (error, Cleanup)

// Cleanup resource allocation, or reverse per-connection state mutations, done
// by an Allow function.
type Cleanup func()

// All returns an Allow function that only passes a connection if all Allow
// functions in a set pass for that connection. Execution is lazy; when one of
// the Allow functions returns an error, no more Allow functions will be called.
func All(fs ...Allow) Allow {
	return func(conn net.Conn) (error, Cleanup) {
		cleanup := func() {}
		for _, f := range fs {
			err, cleanupF := f(conn)
			if cleanupF != nil {
				cleanupCopy := cleanup
				cleanup = func() {
					cleanupF()
					cleanupCopy()
				}
			}
			if err != nil {
				return err, cleanup
			}
		}
		return nil, cleanup
	}
}

// RateLimit returns an Allow function that rejects an IP address if it attempts
// too many connections too quickly. At most cap addresses are tracked; older
// addresses are forgotten in two generations.
func RateLimit(r rate.Limit, b, cap int) Allow {
	mu := new(sync.Mutex)
	cap /= 2
	if cap < 1 {
		cap = 1
	}
	front := make(map[string]*rate.Limiter, cap)
	back := make(map[string]*rate.Limiter, cap)

	return func(conn net.Conn) (error, Cleanup) {
		host := conn.RemoteAddr().String()
		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			host = tcpAddr.IP.String()
		}

		mu.Lock()
		defer mu.Unlock()

		limiter := front[host]
		if limiter == nil {
			limiter = back[host]
		}
		if limiter == nil {
			if len(front) >= cap {
				back = front
				front = make(map[string]*rate.Limiter, cap)
			}
			limiter = rate.NewLimiter(r, b)
			front[host] = limiter
		}
		if limiter.Allow() {
			return nil, nil
		}
		return ErrRateLimited, nil
	}
}

// Max returns an Allow function that rejects connections once a maximum number
// of connections have already been accepted and are being kept-alive. Once an
// accepted connection is closed, it opens up room for another connection to be
// accepted. A negative maximum allows every connection.
func Max(maxConns int) Allow {
	connsMu := new(sync.Mutex)
	conns := 0

	return func(conn net.Conn) (error, Cleanup) {
		if maxConns < 0 {
			return nil, nil
		}

		connsMu.Lock()
		defer connsMu.Unlock()
		if conns >= maxConns {
			return ErrMaxConnectionsExceeded, nil
		}
		conns++

		return nil, func() {
			connsMu.Lock()
			conns--
			connsMu.Unlock()
		}
	}
}
