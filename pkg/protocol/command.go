// Kunhua Huang 2026

package protocol

import (
	"bytes"
	"fmt"
)

type Kind byte

const (
	KindHandshake Kind = 0x01
	KindExit      Kind = 0x02
	KindUnknown   Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindExit:
		return "exit"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Command is a decoded request. Payload is only set for KindUnknown and holds
// the request bytes unchanged.
type Command struct {
	Kind    Kind
	Payload Message
}

func (c Command) IsExit() bool {
	return c.Kind == KindExit
}

func (c Command) String() string {
	if c.Kind == KindUnknown {
		return fmt.Sprintf("Command{Kind=%s, Payload=%q}", c.Kind, c.Payload.String())
	}
	return fmt.Sprintf("Command{Kind=%s}", c.Kind)
}

var (
	exitBytes  = []byte(ExitText)
	replyBytes = []byte(ReplyText)
)

func EncodeHandshake() Message {
	return NewTextMessage(HandshakeText)
}

func EncodeEmptyHandshake() Message {
	return Message{}
}

func EncodeExit() Message {
	return NewTextMessage(ExitText)
}

// Decode classifies a request. Only a byte-exact, full-length "exit" is an
// exit command; case or whitespace variants are Unknown.
func Decode(msg Message) Command {
	switch {
	case bytes.Equal(msg.view(), exitBytes):
		return Command{Kind: KindExit}
	case msg.IsEmpty():
		return Command{Kind: KindHandshake}
	default:
		return Command{Kind: KindUnknown, Payload: msg}
	}
}

// BuildReply returns the acknowledgment sent for every command, exit included.
func BuildReply(_ Command) Message {
	return NewMessage(replyBytes)
}
