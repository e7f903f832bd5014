// Kunhua Huang 2026

package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

// Server is a reply socket over WebSocket. The http.Server accepts upgrades in
// the background, but each upgraded connection waits on an unbuffered channel
// until Receive takes it, so only one peer is served at a time.
type Server struct {
	endpoint string
	opts     *transport.ServerOptions
	upgrader websocket.Upgrader

	mu         sync.Mutex // protects listener, httpServer, conn, session and closed
	listener   net.Listener
	httpServer *http.Server
	conn       *websocket.Conn
	session    string
	closed     bool

	incoming chan *websocket.Conn
	done     chan struct{}

	pending bool
}

var _ transport.ServerTransport = (*Server)(nil)

func NewServer(options ...transport.ServerOption) *Server {
	opts := transport.DefaultServerOptions()

	for _, o := range options {
		o(opts)
	}

	return &Server{
		opts:     opts,
		incoming: make(chan *websocket.Conn),
		done:     make(chan struct{}),
	}
}

func (s *Server) Listen(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return protocol.NewError(protocol.OpBind, addr, fmt.Errorf("already listening on %s", s.endpoint))
	}

	ep, err := wsEndpoint(addr)
	if err != nil {
		return protocol.NewError(protocol.OpBind, addr, err)
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", ep.HostPort())
	if err != nil {
		return protocol.NewError(protocol.OpBind, addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ep.Path, s.handleUpgrade)

	s.listener = listener
	s.endpoint = "ws://" + listener.Addr().String() + ep.Path
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, l net.Listener) {
		_ = srv.Serve(l)
	}(s.httpServer, listener)

	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.opts.MaxMessageSize))
	}

	select {
	case s.incoming <- conn:
	case <-s.done:
		_ = conn.Close()
	}
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

		if err := conn.SetReadDeadline(transport.Deadline(s.opts.ReadTimeout)); err != nil {
			return nil, protocol.NewError(protocol.OpReceive, s.endpoint, fmt.Errorf("set read deadline failed: %w", err))
		}

		stop := interruptOnDone(ctx, conn.SetReadDeadline)
		data, err := readMessage(conn)
		stop()

		if err == nil {
			s.pending = true
			return &transport.Inbound{
				Session: session,
				Remote:  conn.RemoteAddr(),
				Body:    protocol.NewMessage(data),
			}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, protocol.NewError(protocol.OpReceive, s.endpoint, ctxErr)
		}

		if errors.Is(err, websocket.ErrReadLimit) {
			s.dropConn(conn)
			return nil, protocol.NewError(protocol.OpAllocate, s.endpoint, err)
		}

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

func (s *Server) current(ctx context.Context) (*websocket.Conn, string, error) {
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

	select {
	case conn = <-s.incoming:
	case <-ctx.Done():
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, ctx.Err())
	case <-s.done:
		return nil, "", protocol.NewError(protocol.OpReceive, s.endpoint, transport.ErrClosed)
	}

	session = uuid.NewString()

	s.mu.Lock()
	s.conn = conn
	s.session = session
	s.mu.Unlock()

	return conn, session, nil
}

func (s *Server) Reply(ctx context.Context, msg protocol.Message) error {
	if !s.pending {
		return protocol.NewError(protocol.OpSend, s.endpoint,
			fmt.Errorf("%w: no request to reply to", transport.ErrState))
	}
	s.pending = false

	if s.opts.MaxMessageSize > 0 && msg.Len() > s.opts.MaxMessageSize {
		return protocol.NewError(protocol.OpAllocate, s.endpoint,
			fmt.Errorf("reply of %d bytes exceeds max message size %d", msg.Len(), s.opts.MaxMessageSize))
	}

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
	err := conn.WriteMessage(websocket.BinaryMessage, msg.Bytes())
	stop()

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return protocol.NewError(protocol.OpSend, s.endpoint, ctx.Err())
	case isPeerGone(err):
		s.dropConn(conn)
		return fmt.Errorf("reply to session %s: %w", session, transport.ErrPeerGone)
	default:
		return protocol.NewError(protocol.OpSend, s.endpoint, err)
	}
}

func (s *Server) dropConn(conn *websocket.Conn) {
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
	close(s.done)
	httpServer, conn := s.httpServer, s.conn
	s.conn = nil
	s.mu.Unlock()

	var errs []error
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection failed: %w", err))
		}
	}

	// Close also closes the listener handed to Serve.
	if httpServer != nil {
		if err := httpServer.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close http server failed: %w", err))
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
