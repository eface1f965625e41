package orchestrationports

import "context"

// RateLimiter coordinates dispatch throughput per agent.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
