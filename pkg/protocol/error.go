package protocol

import (
	"errors"
	"fmt"
)

// Op names the transport operation that failed.
type Op string

const (
	OpBind     Op = "bind"
	OpConnect  Op = "connect"
	OpSend     Op = "send"
	OpReceive  Op = "receive"
	OpAllocate Op = "allocate"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Op.
var (
	ErrBind    = errors.New("bind failed")
	ErrConnect = errors.New("connect failed")
	ErrSend    = errors.New("send failed")
	ErrReceive = errors.New("receive failed")
	ErrAlloc   = errors.New("message allocation failed")
)

var opSentinels = map[Op]error{
	OpBind:     ErrBind,
	OpConnect:  ErrConnect,
	OpSend:     ErrSend,
	OpReceive:  ErrReceive,
	OpAllocate: ErrAlloc,
}

type Error struct {
	Op   Op
	Addr string
	Err  error
}

func NewError(op Op, addr string, err error) *Error {
	return &Error{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := opSentinels[e.Op]
	return ok && sentinel == target
}

// OpOf reports the failing operation of err, if err wraps a *Error.
func OpOf(err error) (Op, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Op, true
	}
	return "", false
}
