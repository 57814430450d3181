package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgraph/relationshipd/internal/apierr"
)

func init() {
	// Tests never want to wait out real backoff sleeps.
	newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries)
	}
}

func fixture() []Message {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	return []Message{
		{ID: "m1", ThreadID: "t1", From: "alice@acme.io", To: "me@self.io", InternalTimestamp: base},
		{ID: "m2", ThreadID: "t1", From: "me@self.io", To: "alice@acme.io", InternalTimestamp: base.Add(time.Hour)},
		{ID: "m3", ThreadID: "t2", From: "bob@beta.io", To: "me@self.io", InternalTimestamp: base.Add(24 * time.Hour)},
	}
}

func TestGmail_ListMessagesFiltersByDayWindow(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	res, err := g.ListMessages(context.Background(), "after:2026/01/10 before:2026/01/11", "", 50)
	require.NoError(t, err)
	assert.Len(t, res.Messages, 2)
	assert.Empty(t, res.NextPageToken)
}

func TestGmail_ListMessagesPaginates(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	res, err := g.ListMessages(context.Background(), "after:2026/01/10 before:2026/01/11", "", 1)
	require.NoError(t, err)
	assert.Len(t, res.Messages, 1)
	require.NotEmpty(t, res.NextPageToken)

	res2, err := g.ListMessages(context.Background(), "after:2026/01/10 before:2026/01/11", res.NextPageToken, 1)
	require.NoError(t, err)
	assert.Len(t, res2.Messages, 1)
	assert.Empty(t, res2.NextPageToken)
}

func TestGmail_GetHistoryReturnsEventsSinceCursor(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	res, err := g.GetHistory(context.Background(), "2", "")
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, "m3", res.Events[0].MessageID)
}

func TestGmail_GetHistoryCursorBeyondFixtureExpires(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	_, err := g.GetHistory(context.Background(), "99", "")
	assert.ErrorIs(t, err, ErrCursorExpired)
}

func TestGmail_GetMessageNotFound(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	_, err := g.GetMessage(context.Background(), "missing")
	assert.True(t, apierr.Is(err, apierr.NotFound))
}

// flaky fails the first N calls with a provider-transient error, then
// succeeds — used to exercise the retry wrapper without a real network.
type flaky struct {
	Adapter
	failures int
	calls    int
}

func (f *flaky) GetProfile(ctx context.Context) (Profile, error) {
	f.calls++
	if f.calls <= f.failures {
		return Profile{}, apierr.New(apierr.ProviderTransient, "flaky.GetProfile", errors.New("503"))
	}
	return f.Adapter.GetProfile(ctx)
}

func TestWithRetry_RecoversFromTransientErrors(t *testing.T) {
	inner := &flaky{Adapter: NewGmail("me@self.io", fixture()), failures: 2}
	wrapped := WithRetry(inner)

	prof, err := wrapped.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@self.io", prof.Address)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flaky{Adapter: NewGmail("me@self.io", fixture()), failures: 10}
	wrapped := WithRetry(inner)

	_, err := wrapped.GetProfile(context.Background())
	assert.True(t, apierr.Is(err, apierr.ProviderTransient))
	assert.Equal(t, maxRetries+1, inner.calls)
}

func TestWithRetry_DoesNotRetryCursorExpired(t *testing.T) {
	g := NewGmail("me@self.io", fixture())
	wrapped := WithRetry(g)

	_, err := wrapped.GetHistory(context.Background(), "99", "")
	assert.ErrorIs(t, err, ErrCursorExpired)
}
