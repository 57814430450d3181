// Package domain holds the entity types shared across the ingestion core:
// the six persisted kinds from the relationship-graph schema plus the
// small value types (thread references, blacklist categories) that ride
// along with them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies which mail API a Account is ingested through.
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderGraph Provider = "graph"
)

// Account is a single mailbox under ingestion. It is the "account" label
// referenced throughout the spec (e.g. "work", "personal") plus the
// configuration the Coordinator needs to drive it: which provider to call
// and which address is "self" for sent/received classification.
type Account struct {
	Label       string    `json:"label"`
	Provider    Provider  `json:"provider"`
	SelfAddress string    `json:"self_address"`
	Credentials string    `json:"-"` // opaque OAuth token reference; never logged or exposed
	CreatedAt   time.Time `json:"created_at"`
}

// Stats holds the five interaction counters and first/last-seen bounds
// carried by every stat-bearing entity (Company, Domain, Contact,
// EmailAddress).
type Stats struct {
	EmailsTo          int64      `json:"emails_to"`
	EmailsFrom        int64      `json:"emails_from"`
	EmailsIncluded    int64      `json:"emails_included"`
	MeetingsCompleted int64      `json:"meetings_completed"` // reserved, always 0
	MeetingsUpcoming  int64      `json:"meetings_upcoming"`  // reserved, always 0
	FirstSeen         *time.Time `json:"first_seen,omitempty"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
}

// Delta is a relative update to a Stats row: counters to add and a
// candidate message timestamp to fold into first/last-seen via MIN/MAX.
type Delta struct {
	To       int64
	From     int64
	Included int64
	At       time.Time
}

// ThreadRef is one entry in a Contact's or EmailAddress's recent-threads
// list: {threadId, account, timestamp}, most-recent-first, deduplicated
// by ThreadID.
type ThreadRef struct {
	ThreadID  string    `json:"threadId"`
	Account   string    `json:"account"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxRecentThreads is the cap N from invariant I6.
const MaxRecentThreads = 100

// Company is the top-level rollup entity, keyed by an opaque id and
// lazily created the first time any of its domains is seen.
type Company struct {
	ID          uuid.UUID `json:"id"`
	DisplayName *string   `json:"display_name"`
	Stats
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Domain belongs to exactly one Company and is keyed by its lowercased
// FQDN.
type Domain struct {
	FQDN      string    `json:"domain"`
	CompanyID uuid.UUID `json:"company_id"`
	IsPrimary bool      `json:"is_primary"`
	Stats
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is a human at a Company, identified by address alone — no
// attempt is made to merge addresses belonging to the same person across
// domains (Design Note, Open Question: contact identity across domains).
type Contact struct {
	ID            uuid.UUID   `json:"id"`
	CompanyID     uuid.UUID   `json:"company_id"`
	Name          *string     `json:"name"`
	RecentThreads []ThreadRef `json:"recent_threads"`
	Stats
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailAddress is one address belonging to a Contact.
type EmailAddress struct {
	Address       string      `json:"address"`
	ContactID     uuid.UUID   `json:"contact_id"`
	Domain        string      `json:"domain"`
	ObservedName  *string     `json:"observed_name"`
	Active        bool        `json:"active"`
	RecentThreads []ThreadRef `json:"recent_threads"`
	Stats
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncState is the per-account cursor the Coordinator persists at every
// page boundary. BatchDay/PageToken/PageNumber drive the cold catch-up
// state machine; ProviderCursor drives the hot incremental path once
// catch-up completes.
type SyncState struct {
	Account        string     `json:"account"`
	ProviderCursor *string    `json:"provider_cursor,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	BatchDay       *time.Time `json:"batch_day,omitempty"`
	PageToken      *string    `json:"page_token,omitempty"`
	PageNumber     int        `json:"page_number"`
}

// SyncStateUpdate is a partial write to SyncState: unset fields (nil
// pointers) are left unchanged by WriteSyncState.
type SyncStateUpdate struct {
	ProviderCursor *string
	BatchDay       *time.Time
	PageToken      *string
	PageNumber     *int
	ClearPageToken bool
}

// ProcessedMessage records that a provider message id has already been
// counted, so that a crash-and-retry never double-counts it.
type ProcessedMessage struct {
	MessageID   string    `json:"message_id"`
	Account     string    `json:"account"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Category is the closed set of reasons a domain can be blacklisted.
// The decision engine treats every category identically (any hit
// excludes); the category exists for administrative bookkeeping only.
type Category string

const (
	CategorySpam          Category = "spam"
	CategoryPersonal      Category = "personal"
	CategoryTransactional Category = "transactional"
	CategoryManual        Category = "manual"
)

// BlacklistEntry is one row of the persisted domain blacklist.
type BlacklistEntry struct {
	Domain    string    `json:"domain"`
	Category  Category  `json:"category"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
