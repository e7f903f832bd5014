package transport

import "time"

const DefaultMaxMessageSize = 1 << 20

// ------------------- Client Options -------------------

// A zero timeout means no deadline: the call blocks until the peer acts.
type ClientOptions struct {
	DialTimeout     time.Duration
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int
}

func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		DialTimeout:     5 * time.Second,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,

		ReadTimeout:  0,
		WriteTimeout: 0,

		MaxMessageSize: DefaultMaxMessageSize,
	}
}

type ClientOption func(*ClientOptions)

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.DialTimeout = timeout
	}
}

func WithReadTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.ReadTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.WriteTimeout = timeout
	}
}

func WithKeepAlive(keepAlive bool, period time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.KeepAlive = keepAlive
		opts.KeepAlivePeriod = period
	}
}

func WithMaxMessageSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxMessageSize = size
	}
}

// ------------------- Server Options -------------------

type ServerOptions struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int
}

func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		ReadTimeout:    0,
		WriteTimeout:   0,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

type ServerOption func(*ServerOptions)

func WithServerTimeout(read, write time.Duration) ServerOption {
	return func(opts *ServerOptions) {
		opts.ReadTimeout = read
		opts.WriteTimeout = write
	}
}

func WithServerMaxMessageSize(size int) ServerOption {
	return func(opts *ServerOptions) {
		opts.MaxMessageSize = size
	}
}

// Deadline converts a timeout into an absolute deadline, or the zero time.
func Deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
