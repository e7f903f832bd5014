// Package ws carries handshake messages as WebSocket binary frames, one
// message per frame. The WebSocket layer does the framing, so bodies go on
// the wire unchanged.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecstasoy/handshake/pkg/transport"
)

func interruptOnDone(ctx context.Context, expire func(time.Time) error) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = expire(time.Now())
	})
}

func isPeerGone(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func wsEndpoint(addr string) (transport.Endpoint, error) {
	ep, err := transport.ParseEndpoint(addr)
	if err != nil {
		return transport.Endpoint{}, err
	}
	if ep.Scheme != transport.SchemeWS {
		return transport.Endpoint{}, errors.New("ws transport cannot serve scheme " + ep.Scheme)
	}
	return ep, nil
}

// readMessage accepts text and binary frames alike. Control frames are
// handled inside gorilla/websocket.
func readMessage(conn *websocket.Conn) ([]byte, error) {
	_, data, err := conn.ReadMessage()
	return data, err
}

func init() {
	transport.RegisterScheme(
		transport.SchemeWS,
		func(options ...transport.ClientOption) transport.ClientTransport {
			return NewClient(options...)
		},
		func(options ...transport.ServerOption) transport.ServerTransport {
			return NewServer(options...)
		},
	)
}
