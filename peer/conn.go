// Package peer turns a raw TCP connection into a message-level connection to
// a zcash node. Every read and write is bounded by a deadline, and every
// failure is reported as one of ErrTimeout, ErrConnectionTerminated, a
// *ProtocolViolation, or (for anything else) the raw error.
package peer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/autotunafish/zcash/tcp"
	"github.com/autotunafish/zcash/wire"
	"github.com/google/uuid"

	"go.uber.org/zap"
)

// A point in the past, used to interrupt blocked reads and writes when their
// context is cancelled.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is a message-level connection to a remote peer. It is safe to read and
// write concurrently, but concurrent reads (or concurrent writes) are
// serialised. The underlying connection is closed exactly once.
type Conn struct {
	opts Options
	id   uuid.UUID
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New wraps an established connection. The Conn takes ownership of conn.
func New(conn net.Conn, opts Options) *Conn {
	if opts.Logger == nil {
		panic("peer: nil logger")
	}
	if opts.MaxMessageLen <= 0 || opts.MaxMessageLen > wire.MaxMessageLen {
		opts.MaxMessageLen = wire.MaxMessageLen
	}
	id := uuid.New()
	opts.Logger = opts.Logger.With(
		zap.Stringer("conn", id),
		zap.Stringer("remote", conn.RemoteAddr()),
	)
	return &Conn{
		opts: opts,
		id:   id,
		conn: conn,
	}
}

// Dial connects to a remote peer. Failed attempts are retried until the dial
// timeout, or the context, expires.
func Dial(ctx context.Context, address string, opts Options) (*Conn, error) {
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	retry := opts.DialRetry
	if retry == nil {
		retry = DefaultDialRetry
	}
	conn, err := tcp.Connect(ctx, address, func(err error) {
		opts.Logger.Debug("dial", zap.String("addr", address), zap.Error(err))
	}, retry)
	if err != nil {
		return nil, fmt.Errorf("dialing %v: %w", address, err)
	}
	return New(conn, opts), nil
}

// ID uniquely identifies the Conn in logs.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Logger returns the logger of the Conn, annotated with its ID and remote
// address.
func (c *Conn) Logger() *zap.Logger {
	return c.opts.Logger
}

// ReadMessage reads exactly one message. The read is bounded by timeout (or
// the ReadTimeout option when timeout is zero) and by the deadline of the
// context, whichever is earlier. If the context is done before a message is
// read, the context error is returned.
func (c *Conn) ReadMessage(ctx context.Context, timeout time.Duration) (wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.opts.ReadTimeout
	}
	if err := c.conn.SetReadDeadline(deadline(ctx, timeout)); err != nil {
		return nil, classify(err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	_, msg, err := wire.ReadMessageLimit(c.conn, c.opts.Magic, c.opts.MaxMessageLen)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = classify(err)
		c.opts.Logger.Debug("read", zap.Error(err))
		return nil, err
	}
	c.opts.Logger.Debug("read", zap.String("command", msg.Command()))
	return msg, nil
}

// WriteMessage frames and writes a message with a single write.
func (c *Conn) WriteMessage(ctx context.Context, msg wire.Message) error {
	frame, err := wire.EncodeMessage(msg, c.opts.Magic)
	if err != nil {
		return err
	}
	if err := c.write(ctx, frame); err != nil {
		c.opts.Logger.Debug("write", zap.String("command", msg.Command()), zap.Error(err))
		return err
	}
	c.opts.Logger.Debug("write", zap.String("command", msg.Command()))
	return nil
}

// WriteRaw writes arbitrary bytes, which need not form a valid frame.
func (c *Conn) WriteRaw(ctx context.Context, data []byte) error {
	if err := c.write(ctx, data); err != nil {
		c.opts.Logger.Debug("write raw", zap.Int("len", len(data)), zap.Error(err))
		return err
	}
	return nil
}

func (c *Conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(deadline(ctx, c.opts.WriteTimeout)); err != nil {
		return classify(err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	if _, err := c.conn.Write(data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return classify(err)
	}
	return nil
}

// Close the underlying connection. It is safe to call Close more than once;
// every call returns the result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.opts.Logger.Debug("closed", zap.NamedError("close", c.closeErr))
	})
	return c.closeErr
}

// deadline returns the earlier of now+timeout and the deadline of the
// context. The zero time (no deadline) is returned when neither is set.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	t := time.Time{}
	if timeout > 0 {
		t = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (t.IsZero() || d.Before(t)) {
		t = d
	}
	return t
}
