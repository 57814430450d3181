package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgraph/relationshipd/internal/domain"
)

func TestThreadList_UpsertDedupesAndMovesToFront(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var l ThreadList
	l = l.Upsert(domain.ThreadRef{ThreadID: "a", Account: "work", Timestamp: base})
	l = l.Upsert(domain.ThreadRef{ThreadID: "b", Account: "work", Timestamp: base.Add(time.Minute)})
	l = l.Upsert(domain.ThreadRef{ThreadID: "a", Account: "work", Timestamp: base.Add(2 * time.Minute)})

	require.Len(t, l, 2)
	assert.Equal(t, "a", l[0].ThreadID, "re-seen thread moves to front")
	assert.Equal(t, "b", l[1].ThreadID)
	assert.True(t, l.sortedByTimestampDesc())
}

func TestThreadList_UpsertCapsAtMax(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var l ThreadList
	for i := 0; i < domain.MaxRecentThreads+10; i++ {
		l = l.Upsert(domain.ThreadRef{ThreadID: uuid.NewString(), Account: "work", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	assert.Len(t, l, domain.MaxRecentThreads)
}

func TestThreadList_EncodeDecodeRoundTrip(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var l ThreadList
	l = l.Upsert(domain.ThreadRef{ThreadID: "a", Account: "work", Timestamp: base})

	raw, err := l.Encode()
	require.NoError(t, err)

	decoded, err := DecodeThreadList(raw)
	require.NoError(t, err)
	assert.Equal(t, l, decoded)
}

func TestDecodeThreadList_EmptyBlob(t *testing.T) {
	decoded, err := DecodeThreadList(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDeltaBatch_AddContactMergesCounters(t *testing.T) {
	b := NewDeltaBatch()
	id := uuid.New()
	t1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	b.AddContact(id, domain.Delta{To: 1, At: t1}, domain.ThreadRef{ThreadID: "a", Timestamp: t1})
	b.AddContact(id, domain.Delta{From: 1, At: t2}, domain.ThreadRef{ThreadID: "b", Timestamp: t2})

	got := b.Contacts[id]
	assert.Equal(t, int64(1), got.To)
	assert.Equal(t, int64(1), got.From)
	assert.Equal(t, t1, got.At, "first contribution's timestamp wins")
	assert.Equal(t, "b", got.Thread.ThreadID, "last write wins for the staged thread ref")
}

func TestMemory_UpsertCompanyDomainIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, err := m.UpsertCompanyDomain(ctx, "acme.io")
	require.NoError(t, err)
	id2, err := m.UpsertCompanyDomain(ctx, "acme.io")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestMemory_ApplyDeltasAccumulatesAndUpgradesNames(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	companyID, err := m.UpsertCompanyDomain(ctx, "acme.io")
	require.NoError(t, err)
	contactID, err := m.UpsertContactEmail(ctx, "jane@acme.io", "acme.io", nil, companyID)
	require.NoError(t, err)

	batch := NewDeltaBatch()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	batch.AddCompany(companyID, domain.Delta{To: 1, At: at})
	batch.AddContact(contactID, domain.Delta{To: 1, At: at}, domain.ThreadRef{ThreadID: "t1", Timestamp: at})
	batch.ContactNameUpgrades[contactID] = "Jane Doe"

	require.NoError(t, m.ApplyDeltas(ctx, batch))

	company, err := m.GetCompany(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), company.EmailsTo)

	contacts, err := m.ListContactsByCompany(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Jane Doe", *contacts[0].Name)
	assert.Equal(t, int64(1), contacts[0].EmailsTo)
	require.Len(t, contacts[0].RecentThreads, 1)

	// Name is write-once: a second upgrade attempt must not clobber it.
	batch2 := NewDeltaBatch()
	batch2.ContactNameUpgrades[contactID] = "Someone Else"
	require.NoError(t, m.ApplyDeltas(ctx, batch2))
	contacts, err = m.ListContactsByCompany(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", *contacts[0].Name)
}

func TestMemory_MarkProcessedIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.MarkProcessed(ctx, "msg-1", "work"))
	require.NoError(t, m.MarkProcessed(ctx, "msg-1", "work"))

	ok, err := m.HasProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_WriteSyncStateClearsPageTokenExplicitly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tok := "page-2"

	require.NoError(t, m.WriteSyncState(ctx, "work", domain.SyncStateUpdate{PageToken: &tok}))
	st, err := m.ReadSyncState(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, st.PageToken)
	assert.Equal(t, "page-2", *st.PageToken)

	require.NoError(t, m.WriteSyncState(ctx, "work", domain.SyncStateUpdate{ClearPageToken: true}))
	st, err = m.ReadSyncState(ctx, "work")
	require.NoError(t, err)
	assert.Nil(t, st.PageToken)
}

func TestMemory_DeleteCompanyCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	companyID, err := m.UpsertCompanyDomain(ctx, "acme.io")
	require.NoError(t, err)
	_, err = m.UpsertContactEmail(ctx, "jane@acme.io", "acme.io", nil, companyID)
	require.NoError(t, err)

	require.NoError(t, m.DeleteCompany(ctx, companyID))

	emails, err := m.FetchEmails(ctx, []string{"jane@acme.io"})
	require.NoError(t, err)
	assert.Empty(t, emails)

	domains, err := m.FetchDomains(ctx, []string{"acme.io"})
	require.NoError(t, err)
	assert.Empty(t, domains)
}
