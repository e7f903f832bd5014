// Kunhua Huang 2026

package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

type Client struct {
	address string
	opts    *transport.ClientOptions
	conn    *websocket.Conn
	mu      sync.RWMutex // protects conn and address
	pending bool
}

var _ transport.ClientTransport = (*Client)(nil)

func NewClient(options ...transport.ClientOption) *Client {
	opts := transport.DefaultClientOptions()

	for _, o := range options {
		o(opts)
	}

	return &Client{opts: opts}
}

func (c *Client) Dial(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return protocol.NewError(protocol.OpConnect, addr,
			fmt.Errorf("already connected to: %s", c.conn.RemoteAddr().String()))
	}

	ep, err := wsEndpoint(addr)
	if err != nil {
		return protocol.NewError(protocol.OpConnect, addr, err)
	}

	netDialer := &net.Dialer{
		Timeout:   c.opts.DialTimeout,
		KeepAlive: c.opts.KeepAlivePeriod,
	}
	if !c.opts.KeepAlive {
		netDialer.KeepAlive = -1
	}

	dialer := &websocket.Dialer{
		NetDialContext:   netDialer.DialContext,
		HandshakeTimeout: c.opts.DialTimeout,
	}

	url := "ws://" + ep.HostPort() + ep.Path
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return protocol.NewError(protocol.OpConnect, addr, err)
	}

	if c.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(c.opts.MaxMessageSize))
	}

	c.conn = conn
	c.address = addr
	c.pending = false

	return nil
}

func (c *Client) connection(op protocol.Op) (*websocket.Conn, string, error) {
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

	if c.opts.MaxMessageSize > 0 && msg.Len() > c.opts.MaxMessageSize {
		return protocol.NewError(protocol.OpAllocate, addr,
			fmt.Errorf("request of %d bytes exceeds max message size %d", msg.Len(), c.opts.MaxMessageSize))
	}

	if err := ctx.Err(); err != nil {
		return protocol.NewError(protocol.OpSend, addr, err)
	}

	if err := conn.SetWriteDeadline(transport.Deadline(c.opts.WriteTimeout)); err != nil {
		return protocol.NewError(protocol.OpSend, addr, fmt.Errorf("set write deadline failed: %w", err))
	}

	stop := interruptOnDone(ctx, conn.SetWriteDeadline)
	err = conn.WriteMessage(websocket.BinaryMessage, msg.Bytes())
	stop()

	if err != nil {
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
	data, err := readMessage(conn)
	stop()

	if err != nil {
		switch {
		case errors.Is(err, websocket.ErrReadLimit):
			return protocol.Message{}, protocol.NewError(protocol.OpAllocate, addr, err)
		case ctx.Err() != nil:
			err = ctx.Err()
		case isPeerGone(err):
			err = fmt.Errorf("server closed connection: %w", err)
		}
		return protocol.Message{}, protocol.NewError(protocol.OpReceive, addr, err)
	}

	c.pending = false
	return protocol.NewMessage(data), nil
}

// Close sends a close frame before dropping the connection so the server sees
// a clean hang-up.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	err := c.conn.Close()
	c.conn = nil
	c.pending = false
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection failed: %w", err)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn != nil {
		return c.conn.RemoteAddr()
	}

	return nil
}
