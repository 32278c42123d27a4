package resp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Dialer opens connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network string, address string) (net.Conn, error)
}

// Conn is a single, non-pipelined client connection.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *Reader
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: NewReader(conn)}
}

// Dial connects to address through dialer.
func Dial(ctx context.Context, dialer Dialer, address string) (*Conn, error) {
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %v: %w", address, err)
	}
	return NewConn(conn), nil
}

// SetMaxBulkSize changes the reply size limit.
func (c *Conn) SetMaxBulkSize(n int64) {
	c.reader.MaxBulkSize = n
}

// Do sends one command and reads its reply. The context deadline, if any, is
// applied to the whole round trip; cancellation closes the connection.
func (c *Conn) Do(ctx context.Context, args ...string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := WriteCommand(c.conn, args...); err != nil {
		return nil, c.wrap(ctx, args[0], err)
	}
	reply, err := c.reader.ReadReply()
	if err != nil {
		return nil, c.wrap(ctx, args[0], err)
	}
	return reply, nil
}

func (c *Conn) wrap(ctx context.Context, command string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%v failed: %w", command, err)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
