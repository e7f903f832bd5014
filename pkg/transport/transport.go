// Kunhua Huang 2026

package transport

import (
	"context"
	"errors"
	"net"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

var (
	// ErrState is returned when a call would break request/reply alternation.
	ErrState = errors.New("operation not valid in current socket state")
	// ErrPeerGone marks a reply that was dropped because the requester hung up.
	ErrPeerGone = errors.New("peer disconnected before reply")
	ErrClosed   = errors.New("socket closed")
)

// ClientTransport is the requesting side. Send and Receive must alternate,
// starting with Send.
type ClientTransport interface {
	Dial(ctx context.Context, addr string) error
	Send(ctx context.Context, msg protocol.Message) error
	// Receive blocks until the reply arrives or ctx is done.
	Receive(ctx context.Context) (protocol.Message, error)
	Close() error
	RemoteAddr() net.Addr
}

// ServerTransport is the replying side. It serves one peer connection at a
// time; other peers queue in the listen backlog. Receive and Reply must
// alternate, starting with Receive.
type ServerTransport interface {
	Listen(ctx context.Context, addr string) error
	// Receive blocks until a complete request arrives or ctx is done.
	Receive(ctx context.Context) (*Inbound, error)
	Reply(ctx context.Context, msg protocol.Message) error
	Close() error
	Addr() net.Addr
}

// Inbound is a request together with the session it arrived on. A session is
// one peer connection.
type Inbound struct {
	Session string
	Remote  net.Addr
	Body    protocol.Message
}
