package client

import (
	"fmt"
	"strings"
)

type Mode int

const (
	// ModeRequestReply sends the request and blocks for the reply.
	ModeRequestReply Mode = iota
	// ModeFireAndForget returns as soon as the request is written.
	ModeFireAndForget
)

func (m Mode) String() string {
	switch m {
	case ModeRequestReply:
		return "request-reply"
	case ModeFireAndForget:
		return "fire-and-forget"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "request-reply", "reqrep", "req":
		return ModeRequestReply, nil
	case "fire-and-forget", "fire", "send":
		return ModeFireAndForget, nil
	default:
		return 0, fmt.Errorf("unknown client mode %q", s)
	}
}
