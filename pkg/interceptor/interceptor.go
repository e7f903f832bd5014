// Kunhua Huang 2026

package interceptor

import (
	"context"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

// Invoker turns a decoded request into the reply to send back.
type Invoker func(ctx context.Context, cmd protocol.Command) (protocol.Message, error)

type Interceptor func(ctx context.Context, cmd protocol.Command, invoker Invoker) (protocol.Message, error)

type Chain struct {
	interceptors []Interceptor
}

func NewChain(interceptor ...Interceptor) *Chain {
	return &Chain{interceptors: interceptor}
}

func (ic *Chain) Append(interceptor ...Interceptor) {
	ic.interceptors = append(ic.interceptors, interceptor...)
}

func (ic *Chain) Len() int {
	return len(ic.interceptors)
}

func (ic *Chain) Intercept(ctx context.Context, cmd protocol.Command, invoker Invoker) (protocol.Message, error) {
	if len(ic.interceptors) == 0 {
		return invoker(ctx, cmd)
	}

	return ic.buildChain(invoker)(ctx, cmd)
}

// buildChain wraps invoker so that interceptors run in the order they were added.
func (ic *Chain) buildChain(invoker Invoker) Invoker {
	for i := len(ic.interceptors) - 1; i >= 0; i-- {
		next := invoker
		interceptor := ic.interceptors[i]

		invoker = func(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
			return interceptor(ctx, cmd, next)
		}
	}

	return invoker
}
