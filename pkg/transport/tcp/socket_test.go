package tcp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
	"github.com/ecstasoy/handshake/pkg/transport/tcp"
)

func listen(t *testing.T, options ...transport.ServerOption) (*tcp.Server, string) {
	t.Helper()

	srv := tcp.NewServer(options...)
	if err := srv.Listen(context.Background(), "tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	return srv, "tcp://" + srv.Addr().String()
}

func dial(t *testing.T, addr string) *tcp.Client {
	t.Helper()

	cli := tcp.NewClient(transport.WithDialTimeout(2 * time.Second))
	if err := cli.Dial(context.Background(), addr); err != nil {
		t.Fatalf("Dial(%s): %v", addr, err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli
}

// serveOnce answers a single request and reports what it received.
func serveOnce(ctx context.Context, srv *tcp.Server) <-chan *transport.Inbound {
	out := make(chan *transport.Inbound, 1)
	go func() {
		defer close(out)
		in, err := srv.Receive(ctx)
		if err != nil {
			return
		}
		_ = srv.Reply(ctx, protocol.BuildReply(protocol.Decode(in.Body)))
		out <- in
	}()
	return out
}

func TestRequestReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := listen(t)
	received := serveOnce(ctx, srv)

	cli := dial(t, addr)
	if err := cli.Send(ctx, protocol.EncodeHandshake()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply, err := cli.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if reply.String() != protocol.ReplyText {
		t.Errorf("reply = %q, want %q", reply.String(), protocol.ReplyText)
	}

	in := <-received
	if in == nil {
		t.Fatal("server did not receive request")
	}
	if in.Body.String() != protocol.HandshakeText {
		t.Errorf("server got %q", in.Body.String())
	}
	if in.Session == "" {
		t.Error("inbound request has no session id")
	}
}

func TestEmptyMessageExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := listen(t)
	received := serveOnce(ctx, srv)

	cli := dial(t, addr)
	if err := cli.Send(ctx, protocol.EncodeEmptyHandshake()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := cli.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	in := <-received
	if in == nil || !in.Body.IsEmpty() {
		t.Fatalf("server should receive the empty message, got %+v", in)
	}
}

func TestClientAlternation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, addr := listen(t)
	cli := dial(t, addr)

	if _, err := cli.Receive(ctx); !errors.Is(err, transport.ErrState) {
		t.Errorf("Receive before Send = %v, want ErrState", err)
	}

	if err := cli.Send(ctx, protocol.EncodeHandshake()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := cli.Send(ctx, protocol.EncodeHandshake()); !errors.Is(err, transport.ErrState) {
		t.Errorf("second Send = %v, want ErrState", err)
	}
}

func TestServerAlternation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := listen(t)

	if err := srv.Reply(ctx, protocol.BuildReply(protocol.Command{})); !errors.Is(err, transport.ErrState) {
		t.Errorf("Reply before Receive = %v, want ErrState", err)
	}

	cli := dial(t, addr)
	if err := cli.Send(ctx, protocol.EncodeHandshake()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := srv.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, err := srv.Receive(ctx); !errors.Is(err, transport.ErrState) {
		t.Errorf("second Receive = %v, want ErrState", err)
	}
}

func TestServerMovesToNextPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := listen(t)

	// first peer sends and leaves without waiting for the reply
	first := tcp.NewClient()
	if err := first.Dial(ctx, addr); err != nil {
		t.Fatal(err)
	}
	if err := first.Send(ctx, protocol.EncodeHandshake()); err != nil {
		t.Fatal(err)
	}

	in, err := srv.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive from first peer: %v", err)
	}
	_ = first.Close()

	if err := srv.Reply(ctx, protocol.BuildReply(protocol.Decode(in.Body))); err != nil && !errors.Is(err, transport.ErrPeerGone) {
		t.Fatalf("Reply to departed peer = %v, want nil or ErrPeerGone", err)
	}

	second := dial(t, addr)
	received := serveOnce(ctx, srv)

	if err := second.Send(ctx, protocol.EncodeExit()); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Receive(ctx); err != nil {
		t.Fatalf("Receive on second peer: %v", err)
	}

	next := <-received
	if next == nil {
		t.Fatal("second request not served")
	}
	if next.Session == in.Session {
		t.Error("second peer should get a new session id")
	}
	if !protocol.Decode(next.Body).IsExit() {
		t.Errorf("second body = %q", next.Body.String())
	}
}

func TestDialAfterCloseFails(t *testing.T) {
	srv, addr := listen(t)
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cli := tcp.NewClient(transport.WithDialTimeout(time.Second))
	err := cli.Dial(context.Background(), addr)
	if !errors.Is(err, protocol.ErrConnect) {
		t.Fatalf("Dial after close = %v, want ErrConnect", err)
	}
}

func TestListenAddressInUse(t *testing.T) {
	_, addr := listen(t)

	other := tcp.NewServer()
	defer other.Close()

	if err := other.Listen(context.Background(), addr); !errors.Is(err, protocol.ErrBind) {
		t.Fatalf("Listen on used address = %v, want ErrBind", err)
	}
}

func TestListenRejectsOtherScheme(t *testing.T) {
	srv := tcp.NewServer()
	if err := srv.Listen(context.Background(), "ws://127.0.0.1:0/x"); !errors.Is(err, protocol.ErrBind) {
		t.Fatalf("Listen(ws://) = %v, want ErrBind", err)
	}
}

func TestReceiveCanceled(t *testing.T) {
	srv, _ := listen(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := srv.Receive(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Receive = %v, want context.Canceled", err)
	}
	if !errors.Is(err, protocol.ErrReceive) {
		t.Errorf("Receive = %v, want ErrReceive", err)
	}
}

func TestReceiveAfterClose(t *testing.T) {
	srv, _ := listen(t)
	_ = srv.Close()

	if _, err := srv.Receive(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestOversizeRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := listen(t, transport.WithServerMaxMessageSize(4))
	cli := dial(t, addr)

	if err := cli.Send(ctx, protocol.EncodeHandshake()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := srv.Receive(ctx); !errors.Is(err, protocol.ErrAlloc) {
		t.Fatalf("Receive oversize = %v, want ErrAlloc", err)
	}
}
