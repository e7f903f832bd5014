// Kunhua Huang 2026

package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

// Server is a reply socket. It holds at most one peer connection; the next
// peer is accepted only after the current one hangs up. Receive and Reply are
// meant to be called from a single goroutine. Close may be called from any.
type Server struct {
	endpoint string
	opts     *transport.ServerOptions
	codec    *FrameCodec

	mu       sync.Mutex // protects listener, conn, session and closed
	listener net.Listener
	conn     net.Conn
	session  string
	closed   bool

	// reply owed for the last received request
	pending bool
}

var _ transport.ServerTransport = (*Server)(nil)

func NewServer(options ...transport.ServerOption) *Server {
	opts := transport.DefaultServerOptions()

	for _, o := range options {
		o(opts)
	}

	return &Server{
		opts:  opts,
		codec: NewFrameCodec(opts.MaxMessageSize),
	}
}

func (s *Server) Listen(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return protocol.NewError(protocol.OpBind, addr, fmt.Errorf("already listening on %s", s.endpoint))
	}

	ep, err := tcpEndpoint(addr)
	if err != nil {
		return protocol.NewError(protocol.OpBind, addr, err)
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", ep.HostPort())
	if err != nil {
		return protocol.NewError(protocol.OpBind, addr, err)
	}

	s.listener = listener
	s.endpoint = "tcp://" + listener.Addr().String()

	return nil
}

func (s *Server) Receive(ctx context.Context) (*transport.Inbound, error) {
	if s.pending {
		return nil, protocol.NewError(protocol.OpReceive, s.endpoint,
			fmt.Errorf("%w: reply to previous request not sent", transport.ErrState))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, protocol.NewError(protocol.OpReceive, s.endpoint, err)
		}

		conn, session, err := s.current(ctx)
		if err != nil {
			return nil, err
		}

		msg, err := s.read(ctx, conn)
		if err == nil {
			s.pending = true
			return &transport.Inbound{
				Session: session,
				Remote:  conn.RemoteAddr(),
				Body:    msg,
			}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, protocol.NewError(protocol.OpReceive, s.endpoint, ctxErr)
		}

		if errors.Is(err, ErrFrameTooLarge) {
			s.dropConn(conn)
			return nil, protocol.NewError(protocol.OpAllocate, s.endpoint, err)
		}

		// Peer left between requests or idled past ReadTimeout: wait for the next one.
		if isPeerGone(err) || isTimeout(err) {
			s.dropConn(conn)
			continue
		}

		if s.isClosed() {
			return nil, protocol.NewError(protocol.OpReceive, s.endpoint, transport.ErrClosed)
		}

		return nil, protocol.NewError(protocol.OpReceive, s.endpoint, err)
	}
}

func (s *Server) Reply(ctx context.Context, msg protocol.Message) error {
	if !s.pending {
		return protocol.NewError(protocol.OpSend, s.endpoint,
			fmt.Errorf("%w: no request to reply to", transport.ErrState))
	}
	s.pending = false

	s.mu.Lock()
	conn, session := s.conn, s.session
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("reply to session %s: %w", session, transport.ErrPeerGone)
	}

	if err := ctx.Err(); err != nil {
		return protocol.NewError(protocol.OpSend, s.endpoint, err)
	}

	if err := conn.SetWriteDeadline(transport.Deadline(s.opts.WriteTimeout)); err != nil {
		return protocol.NewError(protocol.OpSend, s.endpoint, fmt.Errorf("set write deadline failed: %w", err))
	}

	stop := interruptOnDone(ctx, conn.SetWriteDeadline)
	err := s.codec.WriteFrame(conn, msg)
	stop()

	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return protocol.NewError(protocol.OpAllocate, s.endpoint, err)
	case ctx.Err() != nil:
		return protocol.NewError(protocol.OpSend, s.endpoint, ctx.Err())
	case isPeerGone(err):
		s.dropConn(conn)
		return fmt.Errorf("reply to session %s: %w", session, transport.ErrPeerGone)
	default:
		return protocol.NewError(protocol.OpSend, s.endpoint, err)
	}
}

// current returns the connection of the session being served, accepting a
// new peer when there is none.
func (s *Server) current(ctx context.Context) (net.Conn, string, error) {
	s.mu.Lock()
	listener, conn, session, closed := s.listener, s.conn, s.session, s.closed
	s.mu.Unlock()

	if closed {
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, transport.ErrClosed)
	}
	if listener == nil {
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, fmt.Errorf("not listening, call Listen() first"))
	}
	if conn != nil {
		return conn, session, nil
	}

	if d, ok := listener.(deadliner); ok {
		if err := d.SetDeadline(time.Time{}); err != nil {
			return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, fmt.Errorf("set accept deadline failed: %w", err))
		}
		stop := interruptOnDone(ctx, d.SetDeadline)
		defer stop()
	}

	conn, err := listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, ctxErr)
		}
		if s.isClosed() {
			return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, transport.ErrClosed)
		}
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, fmt.Errorf("accept connection failed: %w", err))
	}

	if err := tuneConn(conn, true, 30*time.Second); err != nil {
		_ = conn.Close()
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, fmt.Errorf("configure connection failed: %w", err))
	}

	session = uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, transport.ErrClosed)
	}
	s.conn = conn
	s.session = session
	s.mu.Unlock()

	return conn, session, nil
}

func (s *Server) read(ctx context.Context, conn net.Conn) (protocol.Message, error) {
	if err := conn.SetReadDeadline(transport.Deadline(s.opts.ReadTimeout)); err != nil {
		return protocol.Message{}, fmt.Errorf("set read deadline failed: %w", err)
	}

	stop := interruptOnDone(ctx, conn.SetReadDeadline)
	defer stop()

	return s.codec.ReadFrame(conn)
}

func (s *Server) dropConn(conn net.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.session = ""
	}
	s.mu.Unlock()

	_ = conn.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Session returns the id of the peer connection currently being served.
func (s *Server) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Server) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	listener, conn := s.listener, s.conn
	s.conn = nil
	s.mu.Unlock()

	var errs []error
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection failed: %w", err))
		}
	}

	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close listener failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}
