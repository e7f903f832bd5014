package server

import "fmt"

type State int32

const (
	StateBinding State = iota
	StateWaitingForRequest
	StateReplying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBinding:
		return "binding"
	case StateWaitingForRequest:
		return "waiting-for-request"
	case StateReplying:
		return "replying"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}
