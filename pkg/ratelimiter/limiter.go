// Kunhua Huang 2026

package ratelimiter

import "context"

// Limiter paces incoming requests. Wait blocks until a token is available or
// ctx is done.
type Limiter interface {
	Allow() bool
	Wait(ctx context.Context) error
	Name() string
}
