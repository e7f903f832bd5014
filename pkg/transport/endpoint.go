// Kunhua Huang 2026

package transport

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

const (
	SchemeTCP = "tcp"
	SchemeWS  = "ws"
)

// Endpoint is a parsed transport address such as tcp://*:5555 or
// ws://localhost:5555/handshake.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

// ParseEndpoint accepts scheme://host:port[/path] or a bare host:port, which
// is taken as tcp. A host of "*" binds every interface.
func ParseEndpoint(addr string) (Endpoint, error) {
	if addr == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	scheme := SchemeTCP
	rest := addr
	if i := strings.Index(addr, "://"); i >= 0 {
		scheme = strings.ToLower(addr[:i])
		rest = addr[i+3:]
	}

	path := ""
	if i := strings.Index(rest, "/"); i >= 0 {
		path = rest[i:]
		rest = rest[:i]
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", addr, err)
	}
	if port == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing port", addr)
	}
	if host == "*" {
		host = ""
	}

	switch scheme {
	case SchemeTCP:
		if path != "" {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: tcp endpoints take no path", addr)
		}
	case SchemeWS:
		if path == "" {
			path = "/"
		}
	}

	return Endpoint{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// HostPort is the address handed to net.Listen / net.Dial.
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Host, e.Port)
}

func (e Endpoint) String() string {
	host := e.Host
	if host == "" {
		host = "*"
	}
	return e.Scheme + "://" + net.JoinHostPort(host, e.Port) + e.Path
}

// ----------------- Scheme Registry -----------------

type ClientFactory func(options ...ClientOption) ClientTransport

type ServerFactory func(options ...ServerOption) ServerTransport

type schemeEntry struct {
	client ClientFactory
	server ServerFactory
}

var schemes = struct {
	entries map[string]schemeEntry
	sync.RWMutex
}{
	entries: make(map[string]schemeEntry),
}

// RegisterScheme is called from the init of each transport package.
func RegisterScheme(scheme string, client ClientFactory, server ServerFactory) {
	schemes.Lock()
	defer schemes.Unlock()

	if client == nil || server == nil {
		panic(fmt.Sprintf("transport: RegisterScheme factory is nil for scheme %s", scheme))
	}

	if _, exists := schemes.entries[scheme]; exists {
		panic(fmt.Sprintf("transport: RegisterScheme called twice for scheme %s", scheme))
	}

	schemes.entries[scheme] = schemeEntry{client: client, server: server}
}

func lookup(addr string) (schemeEntry, error) {
	ep, err := ParseEndpoint(addr)
	if err != nil {
		return schemeEntry{}, err
	}

	schemes.RLock()
	defer schemes.RUnlock()

	entry, ok := schemes.entries[ep.Scheme]
	if !ok {
		return schemeEntry{}, fmt.Errorf("no transport registered for scheme %q", ep.Scheme)
	}
	return entry, nil
}

// NewClientFor builds the client transport matching the scheme of addr.
func NewClientFor(addr string, options ...ClientOption) (ClientTransport, error) {
	entry, err := lookup(addr)
	if err != nil {
		return nil, err
	}
	return entry.client(options...), nil
}

// NewServerFor builds the server transport matching the scheme of addr.
func NewServerFor(addr string, options ...ServerOption) (ServerTransport, error) {
	entry, err := lookup(addr)
	if err != nil {
		return nil, err
	}
	return entry.server(options...), nil
}

func Schemes() []string {
	schemes.RLock()
	defer schemes.RUnlock()

	out := make([]string, 0, len(schemes.entries))
	for s := range schemes.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
