package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgraph/relationshipd/internal/blacklist"
	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/ingest/processor"
	"github.com/mailgraph/relationshipd/internal/provider"
	"github.com/mailgraph/relationshipd/internal/store"
)

const selfAddress = "me@self.io"

// fixedClock pins store.Clock.Now() to a constant instant so tests don't
// need to walk the cold-batch state machine from 2000-01-01 to the
// present day.
type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func fixture(day time.Time) []provider.Message {
	return []provider.Message{
		{ID: "m1", ThreadID: "t1", From: `"Jane Roe" <jane@beta.io>`, To: selfAddress, InternalTimestamp: day.Add(time.Hour)},
		{ID: "m2", ThreadID: "t2", From: "bob@beta.io", To: selfAddress, InternalTimestamp: day.Add(2 * time.Hour)},
	}
}

type fakeBlacklistStore struct{ entries map[string]domain.BlacklistEntry }

func newFakeBlacklistStore() *fakeBlacklistStore {
	return &fakeBlacklistStore{entries: map[string]domain.BlacklistEntry{}}
}
func (f *fakeBlacklistStore) DomainBlacklisted(ctx context.Context, fqdn string) (bool, error) {
	_, ok := f.entries[fqdn]
	return ok, nil
}
func (f *fakeBlacklistStore) CountBlacklistedDomains(ctx context.Context) (int, error) {
	return len(f.entries), nil
}
func (f *fakeBlacklistStore) AllBlacklistedDomains(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(f.entries))
	for d := range f.entries {
		out[d] = struct{}{}
	}
	return out, nil
}
func (f *fakeBlacklistStore) AddBlacklistEntry(ctx context.Context, fqdn string, category domain.Category, source string) error {
	f.entries[fqdn] = domain.BlacklistEntry{Domain: fqdn, Category: category, Source: source}
	return nil
}
func (f *fakeBlacklistStore) RemoveBlacklistEntry(ctx context.Context, fqdn string) error {
	delete(f.entries, fqdn)
	return nil
}
func (f *fakeBlacklistStore) ListBlacklistEntries(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error) {
	return nil, nil
}

func newHarness(t *testing.T, day time.Time) (*Coordinator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	bl := blacklist.New(newFakeBlacklistStore(), nil)
	proc := processor.New(mem, bl)
	adapter := provider.NewGmail(selfAddress, fixture(day))
	account := domain.Account{Label: "work", Provider: domain.ProviderGmail, SelfAddress: selfAddress}
	c := New(account, mem, adapter, proc, bl)
	c.clock = fixedClock{t: day}
	c.startDate = day
	return c, mem
}

func TestBatchSync_ProcessesDayThenAdvancesAndCatchesUp(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c, mem := newHarness(t, day)
	ctx := context.Background()

	r1, err := c.BatchSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cold-batch", r1.Mode)
	assert.Equal(t, 2, r1.MessagesProcessed)
	assert.Equal(t, 2, r1.ContactsCreated)

	state, err := mem.ReadSyncState(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, state.BatchDay)
	assert.Equal(t, day.AddDate(0, 0, 1), *state.BatchDay)

	r2, err := c.BatchSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "caught-up", r2.Mode)
	assert.Zero(t, r2.MessagesProcessed)
}

func TestBatchSync_IsIdempotentUnderReplay(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c, mem := newHarness(t, day)
	ctx := context.Background()

	_, err := c.BatchSync(ctx)
	require.NoError(t, err)

	domains, err := mem.FetchDomains(ctx, []string{"beta.io"})
	require.NoError(t, err)
	company, err := mem.GetCompany(ctx, domains["beta.io"])
	require.NoError(t, err)
	before := company.Stats

	// Reset the cursor to the same day and replay the identical page:
	// ProcessedMessage dedup must make this a no-op (property P1).
	zero := 0
	require.NoError(t, mem.WriteSyncState(ctx, "work", domain.SyncStateUpdate{BatchDay: &day, ClearPageToken: true, PageNumber: &zero}))
	r, err := c.BatchSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.MessagesProcessed)

	company, err = mem.GetCompany(ctx, domains["beta.io"])
	require.NoError(t, err)
	assert.Equal(t, before, company.Stats)
}

func TestRunOnce_DrivesColdBatchThenHandsOffToIncremental(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c, mem := newHarness(t, day)
	ctx := context.Background()

	result, err := c.RunOnce(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "hot-incremental", result.Mode)
	assert.Equal(t, 2, result.MessagesProcessed)

	state, err := mem.ReadSyncState(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, state.ProviderCursor)
}

func TestIncrementalSync_FallsBackToFullSyncWithNoCursor(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c, _ := newHarness(t, day)
	ctx := context.Background()

	result, err := c.IncrementalSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "full", result.Mode)
	assert.Equal(t, 2, result.MessagesProcessed)
}

// cursorExpiredAdapter wraps the Gmail mock so GetHistory always reports
// the provider's cursor-expired error, exercising the Coordinator's
// full_sync fallback (spec §4.5, §4.6).
type cursorExpiredAdapter struct{ provider.Adapter }

func (a cursorExpiredAdapter) GetHistory(ctx context.Context, startCursor, pageToken string) (provider.HistoryResult, error) {
	return provider.HistoryResult{}, provider.ErrCursorExpired
}

func TestIncrementalSync_FallsBackToFullSyncOnCursorExpired(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c, mem := newHarness(t, day)
	c.adapter = cursorExpiredAdapter{Adapter: c.adapter}
	ctx := context.Background()

	require.NoError(t, mem.WriteSyncState(ctx, "work", domain.SyncStateUpdate{ProviderCursor: strPtr("1")}))

	result, err := c.IncrementalSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "full", result.Mode)
	assert.Equal(t, 2, result.MessagesProcessed)
}

func strPtr(s string) *string { return &s }
