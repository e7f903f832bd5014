//Kunhua Huang 2026

package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

// Client is a request socket: Send and Receive strictly alternate on a single
// connection.
type Client struct {
	address string
	opts    *transport.ClientOptions
	codec   *FrameCodec
	conn    net.Conn
	mu      sync.RWMutex // protects conn and address
	pending bool
}

var _ transport.ClientTransport = (*Client)(nil)

func NewClient(options ...transport.ClientOption) *Client {
	opts := transport.DefaultClientOptions()

	for _, o := range options {
		o(opts)
	}

	return &Client{
		opts:  opts,
		codec: NewFrameCodec(opts.MaxMessageSize),
	}
}

func (c *Client) Dial(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return protocol.NewError(protocol.OpConnect, addr,
			fmt.Errorf("already connected to: %s", c.conn.RemoteAddr().String()))
	}

	ep, err := tcpEndpoint(addr)
	if err != nil {
		return protocol.NewError(protocol.OpConnect, addr, err)
	}

	dialer := &net.Dialer{
		Timeout:   c.opts.DialTimeout,
		KeepAlive: c.opts.KeepAlivePeriod,
	}
	if !c.opts.KeepAlive {
		dialer.KeepAlive = -1
	}

	conn, err := dialer.DialContext(ctx, "tcp", ep.HostPort())
	if err != nil {
		return protocol.NewError(protocol.OpConnect, addr, err)
	}

	if err := tuneConn(conn, c.opts.KeepAlive, c.opts.KeepAlivePeriod); err != nil {
		_ = conn.Close()
		return protocol.NewError(protocol.OpConnect, addr, fmt.Errorf("configure connection failed: %w", err))
	}

	c.conn = conn
	c.address = addr
	c.pending = false

	return nil
}

func (c *Client) connection(op protocol.Op) (net.Conn, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil, c.address, protocol.NewError(op, c.address, fmt.Errorf("not connected, call Dial() first"))
	}
	return c.conn, c.address, nil
}

func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	conn, addr, err := c.connection(protocol.OpSend)
	if err != nil {
		return err
	}

	if c.pending {
		return protocol.NewError(protocol.OpSend, addr,
			fmt.Errorf("%w: previous request still awaiting its reply", transport.ErrState))
	}

	if err := ctx.Err(); err != nil {
		return protocol.NewError(protocol.OpSend, addr, err)
	}

	if err := conn.SetWriteDeadline(transport.Deadline(c.opts.WriteTimeout)); err != nil {
		return protocol.NewError(protocol.OpSend, addr, fmt.Errorf("set write deadline failed: %w", err))
	}

	stop := interruptOnDone(ctx, conn.SetWriteDeadline)
	err = c.codec.WriteFrame(conn, msg)
	stop()

	if err != nil {
		if errors.Is(err, ErrFrameTooLarge) {
			return protocol.NewError(protocol.OpAllocate, addr, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return protocol.NewError(protocol.OpSend, addr, err)
	}

	c.pending = true
	return nil
}

func (c *Client) Receive(ctx context.Context) (protocol.Message, error) {
	conn, addr, err := c.connection(protocol.OpReceive)
	if err != nil {
		return protocol.Message{}, err
	}

	if !c.pending {
		return protocol.Message{}, protocol.NewError(protocol.OpReceive, addr,
			fmt.Errorf("%w: no request sent", transport.ErrState))
	}

	if err := ctx.Err(); err != nil {
		return protocol.Message{}, protocol.NewError(protocol.OpReceive, addr, err)
	}

	if err := conn.SetReadDeadline(transport.Deadline(c.opts.ReadTimeout)); err != nil {
		return protocol.Message{}, protocol.NewError(protocol.OpReceive, addr, fmt.Errorf("set read deadline failed: %w", err))
	}

	stop := interruptOnDone(ctx, conn.SetReadDeadline)
	msg, err := c.codec.ReadFrame(conn)
	stop()

	if err != nil {
		switch {
		case errors.Is(err, ErrFrameTooLarge):
			return protocol.Message{}, protocol.NewError(protocol.OpAllocate, addr, err)
		case ctx.Err() != nil:
			err = ctx.Err()
		case errors.Is(err, io.EOF):
			err = fmt.Errorf("server closed connection: %w", err)
		}
		return protocol.Message{}, protocol.NewError(protocol.OpReceive, addr, err)
	}

	c.pending = false
	return msg, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.pending = false
	if err != nil {
		return fmt.Errorf("close connection failed: %w", err)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn != nil {
		return c.conn.LocalAddr()
	}

	return nil
}

func (c *Client) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn != nil {
		return c.conn.RemoteAddr()
	}

	return nil
}
