// Kunhua Huang 2026

package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

// Client performs one exchange per call: connect, send, optionally wait for
// the reply, disconnect.
type Client struct {
	opts      *clientOptions
	transport transport.ClientTransport
	logger    *slog.Logger
}

func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, o := range opts {
		o(options)
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	t := options.transport
	if t == nil {
		var err error
		t, err = transport.NewClientFor(
			options.address,
			transport.WithDialTimeout(options.dialTimeout),
			transport.WithMaxMessageSize(options.maxMessageSize),
		)
		if err != nil {
			return nil, fmt.Errorf("create client transport: %w", err)
		}
	}

	return &Client{
		opts:      options,
		transport: t,
		logger: options.logger.With(
			slog.String("component", "client"),
			slog.String("mode", options.mode.String()),
		),
	}, nil
}

func (c *Client) Mode() Mode {
	return c.opts.mode
}

// Handshake sends the handshake request. In ModeRequestReply it returns the
// server's reply; in ModeFireAndForget the returned message is empty.
func (c *Client) Handshake(ctx context.Context) (protocol.Message, error) {
	msg := protocol.EncodeHandshake()
	if c.opts.emptyPayload {
		msg = protocol.EncodeEmptyHandshake()
	}

	c.notice("Sending a handshake to the friendly server...")
	return c.Exchange(ctx, msg)
}

// Exit asks the server to stop serving after it replies.
func (c *Client) Exit(ctx context.Context) (protocol.Message, error) {
	c.notice("Asking the server to exit...")
	return c.Exchange(ctx, protocol.EncodeExit())
}

// Exchange runs a single request against the configured address. Every
// failure comes back as a *protocol.Error naming the failing operation.
func (c *Client) Exchange(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if c.opts.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.callTimeout)
		defer cancel()
	}

	c.logger.Debug("connecting", slog.String("address", c.opts.address))

	if err := c.transport.Dial(ctx, c.opts.address); err != nil {
		return protocol.Message{}, err
	}
	defer func() {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("close failed", slog.String("err", err.Error()))
		}
	}()

	if err := c.transport.Send(ctx, msg); err != nil {
		return protocol.Message{}, err
	}

	c.logger.Debug("request sent", slog.Int("bytes", msg.Len()))

	if c.opts.mode == ModeFireAndForget {
		return protocol.Message{}, nil
	}

	reply, err := c.transport.Receive(ctx)
	if err != nil {
		return protocol.Message{}, err
	}

	c.notice("received message: " + reply.String())

	return reply, nil
}

func (c *Client) notice(line string) {
	if c.opts.out == nil {
		return
	}
	fmt.Fprintln(c.opts.out, line)
}
