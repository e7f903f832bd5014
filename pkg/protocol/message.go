// Kunhua Huang 2026

package protocol

import "bytes"

// Literal wire contents recognised by both endpoints.
const (
	HandshakeText = "handshake"
	ExitText      = "exit"
	ReplyText     = "back handshake"
)

// Message is an immutable byte sequence with an explicit length. The zero
// value is the empty message, which denotes a bare handshake.
type Message struct {
	data []byte
}

// NewMessage copies b, so later writes to b are not visible through the message.
func NewMessage(b []byte) Message {
	if len(b) == 0 {
		return Message{}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return Message{data: data}
}

func NewTextMessage(s string) Message {
	if s == "" {
		return Message{}
	}
	return Message{data: []byte(s)}
}

// Bytes returns a copy of the message body.
func (m Message) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

func (m Message) Len() int {
	return len(m.data)
}

func (m Message) IsEmpty() bool {
	return len(m.data) == 0
}

func (m Message) Equal(other Message) bool {
	return bytes.Equal(m.data, other.data)
}

func (m Message) String() string {
	return string(m.data)
}

// view exposes the backing slice to the package without copying.
func (m Message) view() []byte {
	return m.data
}
