package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mailgraph/relationshipd/internal/apierr"
)

// maxRetries and the backoff shape come straight from spec §6: base
// 1000 ms, factor 2, capped at 3 retries.
const maxRetries = 3

// newBackOff is a var so tests can swap in a zero-interval policy
// instead of waiting out the real ~7s worth of backoff sleeps.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1000 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries instead of wall-clock
	return backoff.WithMaxRetries(b, maxRetries)
}

func retryPolicy() backoff.BackOff {
	return newBackOff()
}

// retrying wraps an Adapter so that any call failing with a
// provider-transient error is retried under the fixed policy above;
// every other error kind (including ErrCursorExpired) passes straight
// through on the first attempt.
type retrying struct {
	inner Adapter
}

// WithRetry decorates an Adapter with capped exponential backoff on
// transient provider errors (429/500/503 in a real client; simulated
// ones in the mock adapters here).
func WithRetry(inner Adapter) Adapter {
	return &retrying{inner: inner}
}

func retryCall(ctx context.Context, op func() error) error {
	var lastErr error
	attempt := func() error {
		lastErr = op()
		if apierr.Is(lastErr, apierr.ProviderTransient) {
			return lastErr
		}
		// Non-transient (including nil): stop retrying.
		return nil
	}
	if err := backoff.Retry(attempt, backoff.WithContext(retryPolicy(), ctx)); err != nil {
		return err
	}
	return lastErr
}

func (r *retrying) ListMessages(ctx context.Context, q, pageToken string, maxResults int) (ListResult, error) {
	var out ListResult
	err := retryCall(ctx, func() error {
		var innerErr error
		out, innerErr = r.inner.ListMessages(ctx, q, pageToken, maxResults)
		return innerErr
	})
	return out, err
}

func (r *retrying) GetMessage(ctx context.Context, id string) (Message, error) {
	var out Message
	err := retryCall(ctx, func() error {
		var innerErr error
		out, innerErr = r.inner.GetMessage(ctx, id)
		return innerErr
	})
	return out, err
}

func (r *retrying) BatchGetMessages(ctx context.Context, ids []string) ([]Message, error) {
	var out []Message
	err := retryCall(ctx, func() error {
		var innerErr error
		out, innerErr = r.inner.BatchGetMessages(ctx, ids)
		return innerErr
	})
	return out, err
}

func (r *retrying) GetHistory(ctx context.Context, startCursor, pageToken string) (HistoryResult, error) {
	var out HistoryResult
	err := retryCall(ctx, func() error {
		var innerErr error
		out, innerErr = r.inner.GetHistory(ctx, startCursor, pageToken)
		return innerErr
	})
	return out, err
}

func (r *retrying) GetProfile(ctx context.Context) (Profile, error) {
	var out Profile
	err := retryCall(ctx, func() error {
		var innerErr error
		out, innerErr = r.inner.GetProfile(ctx)
		return innerErr
	})
	return out, err
}

var _ Adapter = (*retrying)(nil)
