// Kunhua Huang 2026

package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

const FrameHeaderLength = 4

var ErrFrameTooLarge = errors.New("frame exceeds max message size")

// FrameCodec delimits messages on a byte stream.
//
// Frame layout:
//
//	+--+--+--+--+------------------+
//	| BodyLen   |  body (BodyLen)  |
//	+--+--+--+--+------------------+
//
// BodyLen is big-endian. A zero BodyLen carries the empty message.
type FrameCodec struct {
	maxSize int
}

func NewFrameCodec(maxSize int) *FrameCodec {
	return &FrameCodec{maxSize: maxSize}
}

func (fc *FrameCodec) checkSize(n int) error {
	if fc.maxSize > 0 && n > fc.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fc.maxSize)
	}
	return nil
}

func (fc *FrameCodec) Encode(msg protocol.Message) ([]byte, error) {
	if err := fc.checkSize(msg.Len()); err != nil {
		return nil, err
	}

	body := msg.Bytes()
	result := make([]byte, FrameHeaderLength+len(body))
	binary.BigEndian.PutUint32(result[0:FrameHeaderLength], uint32(len(body)))
	copy(result[FrameHeaderLength:], body)

	return result, nil
}

func (fc *FrameCodec) WriteFrame(w io.Writer, msg protocol.Message) error {
	data, err := fc.Encode(msg)
	if err != nil {
		return err
	}

	return writeFull(w, data)
}

// ReadFrame returns io.EOF when the stream ends cleanly between frames and
// io.ErrUnexpectedEOF when it ends inside one.
func (fc *FrameCodec) ReadFrame(r io.Reader) (protocol.Message, error) {
	header := make([]byte, FrameHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return protocol.Message{}, err
	}

	length := binary.BigEndian.Uint32(header)
	if err := fc.checkSize(int(length)); err != nil {
		return protocol.Message{}, err
	}

	if length == 0 {
		return protocol.Message{}, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return protocol.Message{}, err
	}

	return protocol.NewMessage(body), nil
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
