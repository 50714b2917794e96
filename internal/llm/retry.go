package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/genglossary/genglossary/internal/types"
)

const (
	retryInitialInterval = 1 * time.Second
	retryMaxElapsed      = 30 * time.Second
)

// httpStatusError marks a non-2xx response so the retry policy can branch on
// the status code.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm backend returned HTTP %d: %.200s", e.status, e.body)
}

// retryable reports whether an attempt is worth repeating: rate limits,
// server errors, and network timeouts. Context cancellation never retries —
// cancellation must propagate promptly into long LLM calls.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == 429 || statusErr.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// withRetry runs op under an exponential backoff policy. Errors that exhaust
// the policy and look like transport failures are wrapped in
// types.ErrLLMUnavailable for the 503 mapping at the boundary.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxElapsedTime = retryMaxElapsed

	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := op(); err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *httpStatusError
	var netErr net.Error
	if errors.As(err, &statusErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
	}
	return err
}
