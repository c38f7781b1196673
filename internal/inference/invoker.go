package inference

import "context"

// Invoker is the boundary the orchestration core sees: a named remote
// reasoning call taking a prompt and returning raw text. It stacks the rate
// limiter in front of the bounded pool.
type Invoker struct {
	pool    *Pool
	limiter *RateLimiter
}

// NewInvoker creates an invoker over a pool and limiter. A nil limiter
// disables rate limiting.
func NewInvoker(pool *Pool, limiter *RateLimiter) *Invoker {
	return &Invoker{pool: pool, limiter: limiter}
}

// Invoke issues one completion on behalf of the named service.
func (inv *Invoker) Invoke(ctx context.Context, service, prompt string) (string, error) {
	if inv.limiter != nil {
		if err := inv.limiter.Wait(ctx, service); err != nil {
			return "", err
		}
	}

	result, err := inv.pool.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Response, nil
}
