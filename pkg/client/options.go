package client

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ecstasoy/handshake/pkg/transport"
)

const DefaultAddress = "tcp://localhost:5555"

type clientOptions struct {
	address        string
	mode           Mode
	emptyPayload   bool
	dialTimeout    time.Duration
	callTimeout    time.Duration
	maxMessageSize int
	logger         *slog.Logger
	out            io.Writer
	transport      transport.ClientTransport
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		address:        DefaultAddress,
		mode:           ModeRequestReply,
		dialTimeout:    5 * time.Second,
		callTimeout:    0,
		maxMessageSize: transport.DefaultMaxMessageSize,
		logger:         slog.Default(),
		out:            os.Stdout,
	}
}

type Option func(*clientOptions)

func WithAddress(addr string) Option {
	return func(o *clientOptions) {
		o.address = addr
	}
}

func WithMode(mode Mode) Option {
	return func(o *clientOptions) {
		o.mode = mode
	}
}

// WithEmptyPayload makes Handshake send the zero-length message instead of
// the literal "handshake".
func WithEmptyPayload() Option {
	return func(o *clientOptions) {
		o.emptyPayload = true
	}
}

func WithDialTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.dialTimeout = timeout
	}
}

// WithTimeout bounds a whole exchange. Zero waits for the reply indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.callTimeout = timeout
	}
}

func WithMaxMessageSize(size int) Option {
	return func(o *clientOptions) {
		o.maxMessageSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func WithOutput(w io.Writer) Option {
	return func(o *clientOptions) {
		o.out = w
	}
}

func WithTransport(t transport.ClientTransport) Option {
	return func(o *clientOptions) {
		o.transport = t
	}
}
