// internal/llmclient/retry.go
package llmclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 10 * time.Second
	defaultMaxElapsed   = 90 * time.Second
)

// retryPolicy bounds the transport level retries for one Generate call. These
// only cover transient provider failures; plan level retries belong to the
// orchestrator.
type retryPolicy struct {
	initial    time.Duration
	max        time.Duration
	maxElapsed time.Duration
}

func newRetryPolicy(maxElapsed time.Duration) retryPolicy {
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	return retryPolicy{initial: defaultRetryInitial, max: defaultRetryMax, maxElapsed: maxElapsed}
}

func (p retryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	b.MaxElapsedTime = p.maxElapsed
	return backoff.WithContext(b, ctx)
}

// retry runs op until it succeeds, returns a permanent error, or the policy is
// exhausted.
func retry(ctx context.Context, p retryPolicy, op func() (string, error)) (string, error) {
	out, err := backoff.RetryWithData(op, p.backOff(ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return "", perm.Err
	}
	return out, err
}

// classifyStatus marks an HTTP status as worth retrying or not.
func classifyStatus(status int, err error) error {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}

// isTransientNetErr reports whether a transport error is worth retrying.
func isTransientNetErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
