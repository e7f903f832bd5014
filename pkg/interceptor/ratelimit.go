// Kunhua Huang 2026

package interceptor

import (
	"context"
	"fmt"

	"github.com/ecstasoy/handshake/pkg/protocol"
	"github.com/ecstasoy/handshake/pkg/ratelimiter"
)

// RateLimit holds each request until the limiter admits it. Exit commands
// are never delayed.
func RateLimit(limiter ratelimiter.Limiter) Interceptor {
	return func(ctx context.Context, cmd protocol.Command, invoker Invoker) (protocol.Message, error) {
		if cmd.IsExit() {
			return invoker(ctx, cmd)
		}

		if err := limiter.Wait(ctx); err != nil {
			return protocol.Message{}, fmt.Errorf("%s limiter: %w", limiter.Name(), err)
		}

		return invoker(ctx, cmd)
	}
}
