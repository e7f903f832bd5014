package server_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/ecstasoy/handshake/pkg/interceptor"
	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/server"
	"github.com/ecstasoy/handshake/pkg/transport"
	"github.com/ecstasoy/handshake/pkg/transport/tcp"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// scripted is a ServerTransport that hands out canned requests and records
// the replies and the driver state seen at each call.
type scripted struct {
	requests  []protocol.Message
	replies   []protocol.Message
	replyErr  error
	listenErr error
	states    []server.State
	srv       *server.Server
	closed    int
}

func (f *scripted) Listen(context.Context, string) error {
	return f.listenErr
}

func (f *scripted) Receive(ctx context.Context) (*transport.Inbound, error) {
	f.states = append(f.states, f.srv.State())
	if len(f.requests) == 0 {
		return nil, protocol.NewError(protocol.OpReceive, "fake", io.ErrClosedPipe)
	}
	msg := f.requests[0]
	f.requests = f.requests[1:]
	return &transport.Inbound{Session: "s1", Body: msg}, nil
}

func (f *scripted) Reply(_ context.Context, msg protocol.Message) error {
	f.states = append(f.states, f.srv.State())
	f.replies = append(f.replies, msg)
	return f.replyErr
}

func (f *scripted) Close() error {
	f.closed++
	return nil
}

func (f *scripted) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}
}

func newScripted(t *testing.T, fake *scripted, opts ...server.Option) (*server.Server, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	opts = append([]server.Option{
		server.WithTransport(fake),
		server.WithOutput(&out),
		server.WithLogger(quiet),
	}, opts...)

	srv, err := server.NewServer(opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	fake.srv = srv
	return srv, &out
}

func TestServeStopsOnExit(t *testing.T) {
	fake := &scripted{requests: []protocol.Message{
		protocol.EncodeHandshake(),
		protocol.EncodeEmptyHandshake(),
		protocol.EncodeExit(),
		protocol.EncodeHandshake(), // never read
	}}
	srv, out := newScripted(t, fake)

	if srv.State() != server.StateBinding {
		t.Fatalf("initial state = %s", srv.State())
	}

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fake.replies) != 3 {
		t.Fatalf("sent %d replies, want 3", len(fake.replies))
	}
	for _, r := range fake.replies {
		if r.String() != protocol.ReplyText {
			t.Errorf("reply = %q", r.String())
		}
	}
	if len(fake.requests) != 1 {
		t.Errorf("server kept reading after exit")
	}
	if srv.State() != server.StateStopped {
		t.Errorf("final state = %s, want stopped", srv.State())
	}
	if srv.Handled() != 3 {
		t.Errorf("Handled = %d, want 3", srv.Handled())
	}
	if fake.closed == 0 {
		t.Error("transport not released")
	}

	for i, st := range fake.states {
		want := server.StateWaitingForRequest
		if i%2 == 1 {
			want = server.StateReplying
		}
		if st != want {
			t.Errorf("call %d saw state %s, want %s", i, st, want)
		}
	}

	text := out.String()
	for _, want := range []string{"received message: handshake", "Handshake received.", "Received exit command", "Server stopped."} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestServeReceiveFailureIsFatal(t *testing.T) {
	fake := &scripted{requests: []protocol.Message{protocol.EncodeHandshake()}}
	srv, _ := newScripted(t, fake)

	err := srv.Run(context.Background())
	if !errors.Is(err, protocol.ErrReceive) {
		t.Fatalf("Run = %v, want ErrReceive", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("underlying cause lost: %v", err)
	}
	if srv.State() != server.StateStopped || fake.closed == 0 {
		t.Errorf("state = %s, closed = %d", srv.State(), fake.closed)
	}
}

func TestServeSendFailureIsFatal(t *testing.T) {
	fake := &scripted{
		requests: []protocol.Message{protocol.EncodeHandshake(), protocol.EncodeExit()},
		replyErr: protocol.NewError(protocol.OpSend, "fake", syscall.ENOBUFS),
	}
	srv, _ := newScripted(t, fake)

	err := srv.Run(context.Background())
	if !errors.Is(err, protocol.ErrSend) {
		t.Fatalf("Run = %v, want ErrSend", err)
	}
	if len(fake.replies) != 1 {
		t.Errorf("replies = %d, want 1", len(fake.replies))
	}
	if fake.closed == 0 {
		t.Error("transport not released after send failure")
	}
}

func TestServeDroppedReplyIsNotFatal(t *testing.T) {
	fake := &scripted{
		requests: []protocol.Message{protocol.EncodeHandshake(), protocol.EncodeExit()},
		replyErr: transport.ErrPeerGone,
	}
	srv, _ := newScripted(t, fake)

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if len(fake.replies) != 2 {
		t.Errorf("replies = %d, want 2", len(fake.replies))
	}
}

func TestBindFailure(t *testing.T) {
	fake := &scripted{listenErr: protocol.NewError(protocol.OpBind, "tcp://*:5555", syscall.EADDRINUSE)}
	srv, _ := newScripted(t, fake)

	err := srv.Run(context.Background())
	if !errors.Is(err, protocol.ErrBind) || !errors.Is(err, syscall.EADDRINUSE) {
		t.Fatalf("Run = %v, want ErrBind wrapping EADDRINUSE", err)
	}
	if srv.State() != server.StateStopped {
		t.Errorf("state = %s, want stopped", srv.State())
	}
	if len(fake.states) != 0 {
		t.Error("server received after failed bind")
	}
}

func TestServeWithoutListen(t *testing.T) {
	srv, _ := newScripted(t, &scripted{})
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("Serve before Listen should fail")
	}
}

func TestOnceMode(t *testing.T) {
	tests := []struct {
		name string
		req  protocol.Message
		want string
	}{
		{"handshake", protocol.EncodeEmptyHandshake(), "Handshake received. Exiting..."},
		{"other", protocol.EncodeHandshake(), "The message received isn't a handshake. Exiting..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &scripted{requests: []protocol.Message{tt.req, protocol.EncodeEmptyHandshake()}}
			srv, out := newScripted(t, fake, server.WithOnce())

			if err := srv.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if srv.Handled() != 1 || len(fake.replies) != 1 {
				t.Errorf("handled %d requests, want 1", srv.Handled())
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestHandlerPanicStillReplies(t *testing.T) {
	fake := &scripted{requests: []protocol.Message{protocol.EncodeExit()}}
	srv, _ := newScripted(t, fake)
	srv.Use(
		interceptor.Recovery(),
		func(context.Context, protocol.Command, interceptor.Invoker) (protocol.Message, error) {
			panic("handler bug")
		},
	)

	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.replies) != 1 || fake.replies[0].String() != protocol.ReplyText {
		t.Errorf("replies = %v", fake.replies)
	}
}

// Two-message scenario over a real socket: handshake keeps the server
// running, exit stops it and frees the address.
func TestScriptedHandshakeThenExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	srv, err := server.NewServer(
		server.WithAddress("tcp://127.0.0.1:0"),
		server.WithOutput(&out),
		server.WithLogger(quiet),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(ctx); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := "tcp://" + srv.Addr()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	exchange := func(msg protocol.Message) protocol.Message {
		t.Helper()
		cli := tcp.NewClient()
		if err := cli.Dial(ctx, addr); err != nil {
			t.Fatalf("Dial: %v", err)
		}
		defer cli.Close()
		if err := cli.Send(ctx, msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
		reply, err := cli.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		return reply
	}

	if r := exchange(protocol.EncodeHandshake()); r.String() != protocol.ReplyText {
		t.Errorf("handshake reply = %q", r.String())
	}

	select {
	case err := <-done:
		t.Fatalf("server stopped after handshake: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if r := exchange(protocol.EncodeExit()); r.String() != protocol.ReplyText {
		t.Errorf("exit reply = %q", r.String())
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("server did not stop after exit")
	}

	cli := tcp.NewClient(transport.WithDialTimeout(time.Second))
	if err := cli.Dial(ctx, addr); !errors.Is(err, protocol.ErrConnect) {
		t.Errorf("Dial after exit = %v, want ErrConnect", err)
	}

	text := out.String()
	if !strings.Contains(text, "received message: handshake") {
		t.Errorf("output missing handshake notice:\n%s", text)
	}
	if !strings.Contains(text, "Received exit command") {
		t.Errorf("output missing exit notice:\n%s", text)
	}
}

func TestRunCanceled(t *testing.T) {
	srv, err := server.NewServer(
		server.WithAddress("tcp://127.0.0.1:0"),
		server.WithOutput(io.Discard),
		server.WithLogger(quiet),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := srv.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if srv.State() != server.StateStopped {
		t.Errorf("state = %s", srv.State())
	}
}

func TestUnknownScheme(t *testing.T) {
	if _, err := server.NewServer(server.WithAddress("udp://*:5555")); err == nil {
		t.Fatal("expected error for unregistered scheme")
	}
}
