// Package store implements the Entity Store (spec §4.3): batched
// lookup, insert-if-missing, and relative-delta update over the six
// persisted entity kinds, on PostgreSQL via database/sql and lib/pq.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mailgraph/relationshipd/internal/domain"
)

// EmailLookup is the result row of FetchEmails: the contact an address
// already resolves to, joined against its company in one query.
type EmailLookup struct {
	ContactID    uuid.UUID
	ContactName  *string
	ObservedName *string
	CompanyID    uuid.UUID
}

// ContactDelta folds a Contact's/EmailAddress's stat delta together with
// the thread reference that accompanies it, so ApplyDeltas can stage
// both the counter UPDATE and the recent-threads mutation in the same
// per-key write.
type ContactDelta struct {
	domain.Delta
	Thread domain.ThreadRef
}

// DeltaBatch is everything Processor.Process accumulates for one message,
// ready to commit as a single transaction (spec §4.4 step 11).
type DeltaBatch struct {
	Companies map[uuid.UUID]domain.Delta
	Domains   map[string]domain.Delta
	Contacts  map[uuid.UUID]ContactDelta
	Emails    map[string]ContactDelta

	// ContactNameUpgrades are write-once name upgrades staged for contacts
	// whose stored name is null and whose parsed name in this message
	// is non-null (invariant I9). Keyed by contact id.
	ContactNameUpgrades map[uuid.UUID]string
	// EmailNameUpgrades is the EmailAddress analogue (invariant I8),
	// keyed by address.
	EmailNameUpgrades map[string]string
}

// NewDeltaBatch returns an empty, ready-to-accumulate batch.
func NewDeltaBatch() *DeltaBatch {
	return &DeltaBatch{
		Companies:           make(map[uuid.UUID]domain.Delta),
		Domains:             make(map[string]domain.Delta),
		Contacts:            make(map[uuid.UUID]ContactDelta),
		Emails:              make(map[string]ContactDelta),
		ContactNameUpgrades: make(map[uuid.UUID]string),
		EmailNameUpgrades:   make(map[string]string),
	}
}

// mergeDelta folds an additional contribution into an accumulated delta:
// counters sum. At carries the message timestamp through to the store's
// MIN/MAX(first_seen/last_seen) update; one message has one timestamp,
// so the first contribution to set it wins.
func mergeDelta(acc domain.Delta, add domain.Delta) domain.Delta {
	acc.To += add.To
	acc.From += add.From
	acc.Included += add.Included
	if acc.At.IsZero() {
		acc.At = add.At
	}
	return acc
}

// AddCompany accumulates a Company-level contribution.
func (b *DeltaBatch) AddCompany(id uuid.UUID, d domain.Delta) {
	b.Companies[id] = mergeDelta(b.Companies[id], d)
}

// AddDomain accumulates a Domain-level contribution.
func (b *DeltaBatch) AddDomain(fqdn string, d domain.Delta) {
	b.Domains[fqdn] = mergeDelta(b.Domains[fqdn], d)
}

// AddContact accumulates a Contact-level contribution and its thread
// reference (last write for the thread ref within a batch wins, which
// is always the same message's timestamp in this pipeline).
func (b *DeltaBatch) AddContact(id uuid.UUID, d domain.Delta, thread domain.ThreadRef) {
	cur := b.Contacts[id]
	cur.Delta = mergeDelta(cur.Delta, d)
	cur.Thread = thread
	b.Contacts[id] = cur
}

// AddEmail accumulates an EmailAddress-level contribution and its
// thread reference.
func (b *DeltaBatch) AddEmail(addr string, d domain.Delta, thread domain.ThreadRef) {
	cur := b.Emails[addr]
	cur.Delta = mergeDelta(cur.Delta, d)
	cur.Thread = thread
	b.Emails[addr] = cur
}

// Store is the full Entity Store port the Message Processor and
// Ingestion Coordinator depend on. It embeds blacklist.Store's shape so
// a single PostgreSQL implementation backs both.
type Store interface {
	// Lookup fan-out.
	FetchDomains(ctx context.Context, fqdns []string) (map[string]uuid.UUID, error)
	FetchEmails(ctx context.Context, addrs []string) (map[string]EmailLookup, error)

	// Insert-if-missing.
	UpsertCompanyDomain(ctx context.Context, fqdn string) (companyID uuid.UUID, err error)
	UpsertContactEmail(ctx context.Context, addr, fqdn string, name *string, companyID uuid.UUID) (contactID uuid.UUID, err error)

	// Delta update and write-once name upgrade.
	ApplyDeltas(ctx context.Context, batch *DeltaBatch) error
	SetContactNameIfNull(ctx context.Context, contactID uuid.UUID, name string) error

	// Dedup writes.
	MarkProcessed(ctx context.Context, messageID, account string) error
	HasProcessed(ctx context.Context, messageID string) (bool, error)

	// Cursor writes.
	ReadSyncState(ctx context.Context, account string) (domain.SyncState, error)
	WriteSyncState(ctx context.Context, account string, update domain.SyncStateUpdate) error

	// Blacklist.
	DomainBlacklisted(ctx context.Context, fqdn string) (bool, error)
	CountBlacklistedDomains(ctx context.Context) (int, error)
	AllBlacklistedDomains(ctx context.Context) (map[string]struct{}, error)
	AddBlacklistEntry(ctx context.Context, fqdn string, category domain.Category, source string) error
	RemoveBlacklistEntry(ctx context.Context, fqdn string) error
	ListBlacklistEntries(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error)

	// Administrative reads, for the query surface.
	GetCompany(ctx context.Context, id uuid.UUID) (domain.Company, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]domain.Company, error)
	ListContactsByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.Contact, error)
	ListDomainsByCompany(ctx context.Context, companyID uuid.UUID) ([]string, error)
	DeleteCompany(ctx context.Context, id uuid.UUID) error

	Close() error
}

// Clock is overridable in tests; production callers use RealClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// RealClock is the production Clock.
var RealClock Clock = realClock{}
