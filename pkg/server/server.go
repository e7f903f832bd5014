// Kunhua Huang 2026

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ecstasoy/handshake/pkg/interceptor"
	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

// Server is the replying endpoint. It binds once, then answers one request at
// a time until it receives an exit command.
type Server struct {
	opts      *serverOptions
	transport transport.ServerTransport
	chain     *interceptor.Chain
	logger    *slog.Logger

	state   atomic.Int32
	bound   atomic.Bool
	handled atomic.Int64
}

func NewServer(opts ...Option) (*Server, error) {
	options := defaultServerOptions()
	for _, o := range opts {
		o(options)
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	t := options.transport
	if t == nil {
		var err error
		t, err = transport.NewServerFor(
			options.address,
			transport.WithServerTimeout(options.readTimeout, options.writeTimeout),
			transport.WithServerMaxMessageSize(options.maxMessageSize),
		)
		if err != nil {
			return nil, fmt.Errorf("create server transport: %w", err)
		}
	}

	s := &Server{
		opts:      options,
		transport: t,
		chain:     interceptor.NewChain(),
		logger:    options.logger.With(slog.String("component", "server")),
	}
	s.setState(StateBinding)

	return s, nil
}

// Use adds interceptors around the handling of every request.
// usage:
// srv.Use(
//
//		interceptor.Recovery(),
//		interceptor.Logging(nil),
//		interceptor.Metrics(collectors),
//	)
//
// The interceptors will be executed in the order they are added.
func (s *Server) Use(interceptors ...interceptor.Interceptor) {
	s.chain.Append(interceptors...)
}

// Listen binds the configured address. On failure the transport is released
// and the server moves straight to StateStopped.
func (s *Server) Listen(ctx context.Context) error {
	s.setState(StateBinding)

	if err := s.transport.Listen(ctx, s.opts.address); err != nil {
		_ = s.transport.Close()
		s.setState(StateStopped)
		return err
	}

	s.bound.Store(true)
	s.setState(StateWaitingForRequest)
	s.logger.Info("listening", slog.String("address", s.Addr()))

	return nil
}

// Serve runs the receive/reply loop. It blocks in Receive until a request
// arrives. It returns nil after an exit command (or the first exchange with
// WithOnce) and the transport error otherwise. The bound endpoint is released
// on every return path.
func (s *Server) Serve(ctx context.Context) (err error) {
	if !s.bound.Load() {
		return fmt.Errorf("not listening on %s, call Listen() first", s.opts.address)
	}

	defer func() {
		if cerr := s.transport.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release endpoint: %w", cerr)
		}
		s.bound.Store(false)
		s.setState(StateStopped)
	}()

	s.notice("Waiting for a client to give me a handshake...")

	for {
		s.setState(StateWaitingForRequest)

		in, err := s.transport.Receive(ctx)
		if err != nil {
			return err
		}

		s.setState(StateReplying)

		stop, err := s.exchange(ctx, in)
		if err != nil {
			return err
		}

		if stop {
			return nil
		}
	}
}

// Run binds and serves.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}

	return s.Serve(ctx)
}

// exchange decodes a request, sends its reply and reports whether the loop
// should stop.
func (s *Server) exchange(ctx context.Context, in *transport.Inbound) (bool, error) {
	cmd := protocol.Decode(in.Body)

	logger := s.logger.With(slog.String("session", in.Session))
	if in.Remote != nil {
		logger = logger.With(slog.String("remote", in.Remote.String()))
	}
	logger.Debug("request received", slog.String("command", cmd.Kind.String()), slog.Int("bytes", in.Body.Len()))

	reply, err := s.chain.Intercept(ctx, cmd, s.handle)
	if err != nil {
		// A request is always answered, so fall back to the plain acknowledgment.
		logger.Error("request handler failed", slog.String("err", err.Error()))
		reply = protocol.BuildReply(cmd)
	}

	if err := s.transport.Reply(ctx, reply); err != nil {
		if !errors.Is(err, transport.ErrPeerGone) {
			return false, err
		}
		logger.Warn("reply dropped, requester disconnected")
	}

	s.handled.Add(1)

	switch {
	case cmd.IsExit():
		s.notice("Server stopped.")
		return true, nil
	case s.opts.once:
		return true, nil
	default:
		return false, nil
	}
}

func (s *Server) handle(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	switch cmd.Kind {
	case protocol.KindExit:
		s.notice("Received exit command, shutting down...")
	case protocol.KindHandshake:
		if s.opts.once {
			s.notice("Handshake received. Exiting...")
		} else {
			s.notice("Handshake received.")
		}
	default:
		if s.opts.once {
			s.notice("The message received isn't a handshake. Exiting...")
		} else {
			s.notice("received message: " + cmd.Payload.String())
		}
	}

	return protocol.BuildReply(cmd), nil
}

func (s *Server) notice(line string) {
	if s.opts.out == nil {
		return
	}
	fmt.Fprintln(s.opts.out, line)
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Server) State() State {
	return State(s.state.Load())
}

// Handled returns the number of requests answered so far.
func (s *Server) Handled() int64 {
	return s.handled.Load()
}

// Stop releases the endpoint, unblocking a pending Receive.
func (s *Server) Stop() error {
	return s.transport.Close()
}

func (s *Server) Addr() string {
	if addr := s.transport.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
