package llm

import (
	"context"

	"github.com/jywlabs/coursewright/internal/retry"
)

// retrying wraps a Client with bounded exponential backoff.
type retrying struct {
	next Client
	cfg  retry.Config
}

// WithRetry returns a Client that retries transport, auth and quota errors.
func WithRetry(c Client, cfg retry.Config) Client {
	return &retrying{next: c, cfg: cfg}
}

func (r *retrying) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	res := retry.Execute(ctx, r.cfg, func() retry.Result {
		out, err := r.next.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return retry.Result{Error: err}
		}
		return retry.Result{Success: true, Output: out}
	})
	if !res.Success {
		return "", res.Error
	}
	return res.Output, nil
}
