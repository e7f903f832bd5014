// Kunhua Huang 2026

package interceptor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

func Logging(logger *slog.Logger) Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, cmd protocol.Command, invoker Invoker) (protocol.Message, error) {
		start := time.Now()

		logger.DebugContext(ctx, "request", slog.String("command", cmd.Kind.String()), slog.Int("bytes", cmd.Payload.Len()))

		reply, err := invoker(ctx, cmd)

		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "request failed",
				slog.String("command", cmd.Kind.String()),
				slog.Duration("duration", duration),
				slog.String("err", err.Error()))
		} else {
			logger.InfoContext(ctx, "request handled",
				slog.String("command", cmd.Kind.String()),
				slog.Int("reply_bytes", reply.Len()),
				slog.Duration("duration", duration))
		}

		return reply, err
	}
}
