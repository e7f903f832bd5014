// Kunhua Huang 2026

package server

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ecstasoy/handshake/pkg/transport"
)

const DefaultAddress = "tcp://*:5555"

type serverOptions struct {
	address        string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int
	logger         *slog.Logger
	out            io.Writer
	once           bool
	transport      transport.ServerTransport
}

func defaultServerOptions() *serverOptions {
	return &serverOptions{
		address:        DefaultAddress,
		readTimeout:    0,
		writeTimeout:   0,
		maxMessageSize: transport.DefaultMaxMessageSize,
		logger:         slog.Default(),
		out:            os.Stdout,
	}
}

type Option func(*serverOptions)

// WithAddress sets the endpoint to bind, e.g. tcp://*:5555 or ws://*:5555/handshake.
func WithAddress(addr string) Option {
	return func(o *serverOptions) {
		o.address = addr
	}
}

// WithTimeout bounds reads and writes on a peer connection. Zero blocks forever.
func WithTimeout(read, write time.Duration) Option {
	return func(o *serverOptions) {
		o.readTimeout = read
		o.writeTimeout = write
	}
}

func WithMaxMessageSize(size int) Option {
	return func(o *serverOptions) {
		o.maxMessageSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// WithOutput redirects the human-readable progress notices (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(o *serverOptions) {
		o.out = w
	}
}

// WithOnce stops the server after its first exchange, whatever the request.
func WithOnce() Option {
	return func(o *serverOptions) {
		o.once = true
	}
}

// WithTransport replaces the transport normally picked from the address scheme.
func WithTransport(t transport.ServerTransport) Option {
	return func(o *serverOptions) {
		o.transport = t
	}
}
