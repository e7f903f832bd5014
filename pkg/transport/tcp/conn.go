package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/ecstasoy/handshake/pkg/transport"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// interruptOnDone expires d as soon as ctx is done, unblocking any pending
// Accept/Read/Write on it. Call the returned stop once the blocking call returns.
func interruptOnDone(ctx context.Context, expire func(time.Time) error) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = expire(time.Now())
	})
}

// isPeerGone reports errors meaning the other end closed or reset the connection.
func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func tuneConn(conn net.Conn, keepAlive bool, period time.Duration) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if keepAlive {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if period > 0 {
			if err := tcpConn.SetKeepAlivePeriod(period); err != nil {
				return err
			}
		}
	}

	return tcpConn.SetNoDelay(true)
}

func tcpEndpoint(addr string) (transport.Endpoint, error) {
	ep, err := transport.ParseEndpoint(addr)
	if err != nil {
		return transport.Endpoint{}, err
	}
	if ep.Scheme != transport.SchemeTCP {
		return transport.Endpoint{}, errors.New("tcp transport cannot serve scheme " + ep.Scheme)
	}
	return ep, nil
}

func init() {
	transport.RegisterScheme(
		transport.SchemeTCP,
		func(options ...transport.ClientOption) transport.ClientTransport {
			return NewClient(options...)
		},
		func(options ...transport.ServerOption) transport.ServerTransport {
			return NewServer(options...)
		},
	)
}
