// Kunhua Huang 2026

package interceptor

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

func Recovery() Interceptor {
	return func(ctx context.Context, cmd protocol.Command, invoker Invoker) (reply protocol.Message, err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				err = fmt.Errorf("panic recovered: %v\nstack:\n%s", r, stack)
				reply = protocol.Message{}
			}
		}()

		return invoker(ctx, cmd)
	}
}
