package agent

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/bayonhq/coagent/types"
)

// rateLimitedInvoker throttles invocations of a single capability.
// It waits on the limiter before delegating, so parallel workflow steps
// targeting the same agent share one token bucket.
type rateLimitedInvoker struct {
	inner   Invoker
	limiter *rate.Limiter
}

// RateLimited wraps inv with a token-bucket limiter allowing rps invocations
// per second with the given burst. rps <= 0 returns inv unchanged.
func RateLimited(inv Invoker, rps float64, burst int) Invoker {
	if rps <= 0 {
		return inv
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedInvoker{
		inner:   inv,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Invoke implements Invoker.
func (r *rateLimitedInvoker) Invoke(ctx context.Context, input types.Payload) (types.Payload, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrKindTimeout, "rate limit wait exceeded deadline").WithCause(err)
		}
		return nil, types.NewError(types.ErrKindCancelled, "rate limit wait cancelled").WithCause(err)
	}
	return r.inner.Invoke(ctx, input)
}
