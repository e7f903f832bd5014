package transport_test

import (
	"context"
	"net"
	"testing"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/transport"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		want     transport.Endpoint
		hostPort string
	}{
		{"tcp://localhost:5555", transport.Endpoint{Scheme: "tcp", Host: "localhost", Port: "5555"}, "localhost:5555"},
		{"tcp://*:5555", transport.Endpoint{Scheme: "tcp", Host: "", Port: "5555"}, ":5555"},
		{"127.0.0.1:0", transport.Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: "0"}, "127.0.0.1:0"},
		{"TCP://[::1]:80", transport.Endpoint{Scheme: "tcp", Host: "::1", Port: "80"}, "[::1]:80"},
		{"ws://localhost:8080/hs", transport.Endpoint{Scheme: "ws", Host: "localhost", Port: "8080", Path: "/hs"}, "localhost:8080"},
		{"ws://*:8080", transport.Endpoint{Scheme: "ws", Host: "", Port: "8080", Path: "/"}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := transport.ParseEndpoint(tt.in)
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEndpoint(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.HostPort() != tt.hostPort {
				t.Errorf("HostPort() = %q, want %q", got.HostPort(), tt.hostPort)
			}
		})
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, in := range []string{"", "localhost", "tcp://localhost", "tcp://localhost:5555/path", "tcp://localhost:"} {
		if _, err := transport.ParseEndpoint(in); err == nil {
			t.Errorf("ParseEndpoint(%q) expected error", in)
		}
	}
}

func TestEndpointString(t *testing.T) {
	ep, err := transport.ParseEndpoint("tcp://*:5555")
	if err != nil {
		t.Fatal(err)
	}
	if ep.String() != "tcp://*:5555" {
		t.Errorf("String() = %q", ep.String())
	}
}

type stubClient struct{}

func (stubClient) Dial(context.Context, string) error { return nil }
func (stubClient) Send(context.Context, protocol.Message) error { return nil }
func (stubClient) Receive(context.Context) (protocol.Message, error) { return protocol.Message{}, nil }
func (stubClient) Close() error { return nil }
func (stubClient) RemoteAddr() net.Addr { return nil }

type stubServer struct{}

func (stubServer) Listen(context.Context, string) error { return nil }
func (stubServer) Receive(context.Context) (*transport.Inbound, error) { return nil, nil }
func (stubServer) Reply(context.Context, protocol.Message) error { return nil }
func (stubServer) Close() error { return nil }
func (stubServer) Addr() net.Addr { return nil }

func TestSchemeRegistry(t *testing.T) {
	transport.RegisterScheme("stub",
		func(...transport.ClientOption) transport.ClientTransport { return stubClient{} },
		func(...transport.ServerOption) transport.ServerTransport { return stubServer{} },
	)

	if _, err := transport.NewClientFor("stub://localhost:1"); err != nil {
		t.Errorf("NewClientFor: %v", err)
	}
	if _, err := transport.NewServerFor("stub://*:1"); err != nil {
		t.Errorf("NewServerFor: %v", err)
	}
	if _, err := transport.NewClientFor("udp://localhost:1"); err == nil {
		t.Error("expected error for unregistered scheme")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	transport.RegisterScheme("stub",
		func(...transport.ClientOption) transport.ClientTransport { return stubClient{} },
		func(...transport.ServerOption) transport.ServerTransport { return stubServer{} },
	)
}
