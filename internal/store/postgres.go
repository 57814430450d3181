package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mailgraph/relationshipd/internal/apierr"
	"github.com/mailgraph/relationshipd/internal/domain"
)

// Postgres implements Store against PostgreSQL via database/sql + lib/pq,
// grounded on the teacher's PostgresStore: same connection-pool tuning
// idiom, same InitSchema-on-boot idiom, same ON CONFLICT insert-if-absent
// style — generalized from the teacher's single-row inserts to this
// spec's multi-statement, explicitly-transactional batches.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies connectivity.
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// A long-lived daemon with one goroutine per account needs more
	// headroom than the teacher's single-demo-process defaults.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Postgres{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

// InitSchema creates the six core tables plus the blacklist table if
// they do not already exist. In production this is replaced by a real
// migration tool; the teacher's prototype does the same inline-DDL
// shortcut, kept here for the same reason.
func (s *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	-- ============================================================================
	-- COMPANIES
	-- ============================================================================
	-- Lazily created the first time any of its domains is seen (I7); never
	-- auto-renamed afterward. meetings_completed/meetings_upcoming are reserved
	-- for a future calendar-ingestion feature and always write as 0.
	CREATE TABLE IF NOT EXISTS companies (
		id UUID PRIMARY KEY,
		display_name TEXT,
		emails_to BIGINT NOT NULL DEFAULT 0,
		emails_from BIGINT NOT NULL DEFAULT 0,
		emails_included BIGINT NOT NULL DEFAULT 0,
		meetings_completed BIGINT NOT NULL DEFAULT 0,
		meetings_upcoming BIGINT NOT NULL DEFAULT 0,
		first_seen TIMESTAMP,
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_companies_created_at ON companies(created_at);

	-- ============================================================================
	-- DOMAINS
	-- ============================================================================
	-- Keyed by lowercased FQDN (I2); one company may own several domains, one
	-- of which is marked primary (the first one seen).
	CREATE TABLE IF NOT EXISTS domains (
		domain TEXT PRIMARY KEY,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		emails_to BIGINT NOT NULL DEFAULT 0,
		emails_from BIGINT NOT NULL DEFAULT 0,
		emails_included BIGINT NOT NULL DEFAULT 0,
		meetings_completed BIGINT NOT NULL DEFAULT 0,
		meetings_upcoming BIGINT NOT NULL DEFAULT 0,
		first_seen TIMESTAMP,
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_domains_company ON domains(company_id);

	-- ============================================================================
	-- CONTACTS
	-- ============================================================================
	-- One Contact per distinct EmailAddress ever seen (Open Question: no
	-- cross-domain identity merging in this core). recent_threads is a JSONB
	-- array of {threadId, account, timestamp}, capped at 100 entries (I6),
	-- decoded into store.ThreadList for mutation.
	CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY,
		company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT,
		recent_threads JSONB NOT NULL DEFAULT '[]',
		emails_to BIGINT NOT NULL DEFAULT 0,
		emails_from BIGINT NOT NULL DEFAULT 0,
		emails_included BIGINT NOT NULL DEFAULT 0,
		meetings_completed BIGINT NOT NULL DEFAULT 0,
		meetings_upcoming BIGINT NOT NULL DEFAULT 0,
		first_seen TIMESTAMP,
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company_id);
	CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at);

	-- ============================================================================
	-- EMAIL_ADDRESSES
	-- ============================================================================
	-- Keyed by the lowercased address (I2). observed_name and the parent
	-- Contact's name both follow a write-once-from-null rule (I8, I9).
	CREATE TABLE IF NOT EXISTS email_addresses (
		address TEXT PRIMARY KEY,
		contact_id UUID NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		domain TEXT NOT NULL,
		observed_name TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		recent_threads JSONB NOT NULL DEFAULT '[]',
		emails_to BIGINT NOT NULL DEFAULT 0,
		emails_from BIGINT NOT NULL DEFAULT 0,
		emails_included BIGINT NOT NULL DEFAULT 0,
		meetings_completed BIGINT NOT NULL DEFAULT 0,
		meetings_upcoming BIGINT NOT NULL DEFAULT 0,
		first_seen TIMESTAMP,
		last_seen TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_emails_contact ON email_addresses(contact_id);

	-- ============================================================================
	-- SYNC_STATE
	-- ============================================================================
	-- Singleton per account. batch_day/page_token/page_number drive the cold
	-- catch-up state machine; provider_cursor drives the hot incremental path.
	CREATE TABLE IF NOT EXISTS sync_state (
		account TEXT PRIMARY KEY,
		provider_cursor TEXT,
		last_sync_at TIMESTAMP,
		batch_day DATE,
		page_token TEXT,
		page_number INT NOT NULL DEFAULT 0
	);

	-- ============================================================================
	-- PROCESSED_MESSAGES
	-- ============================================================================
	-- Dedup ledger (I4): absence means the message has never been counted.
	-- Inserted before the mutation batch, never deleted by ingestion itself.
	CREATE TABLE IF NOT EXISTS processed_messages (
		message_id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- ============================================================================
	-- BLACKLIST
	-- ============================================================================
	CREATE TABLE IF NOT EXISTS blacklist (
		domain TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// FetchDomains resolves the company each already-known domain belongs
// to, as a single query.
func (s *Postgres) FetchDomains(ctx context.Context, fqdns []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(fqdns))
	if len(fqdns) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, company_id FROM domains WHERE domain = ANY($1)`,
		pq.Array(fqdns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var fqdn string
		var companyID uuid.UUID
		if err := rows.Scan(&fqdn, &companyID); err != nil {
			return nil, err
		}
		out[fqdn] = companyID
	}
	return out, rows.Err()
}

// FetchEmails resolves the contact each already-known address belongs
// to, implemented as a single join against contacts.
func (s *Postgres) FetchEmails(ctx context.Context, addrs []string) (map[string]EmailLookup, error) {
	out := make(map[string]EmailLookup, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.address, e.contact_id, c.name, e.observed_name, c.company_id
		FROM email_addresses e
		JOIN contacts c ON c.id = e.contact_id
		WHERE e.address = ANY($1)
	`, pq.Array(addrs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		var lookup EmailLookup
		if err := rows.Scan(&addr, &lookup.ContactID, &lookup.ContactName, &lookup.ObservedName, &lookup.CompanyID); err != nil {
			return nil, err
		}
		out[addr] = lookup
	}
	return out, rows.Err()
}

// UpsertCompanyDomain creates a Company + primary Domain if the domain
// is new; a no-op (returning the existing owner) otherwise. Concurrency:
// insert-or-ignore on the domains primary key, then fetch to recover the
// actual company id — safe under two account goroutines racing the same
// new domain (spec §5).
func (s *Postgres) UpsertCompanyDomain(ctx context.Context, fqdn string) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer tx.Rollback()

	candidate := uuid.New()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO companies (id, display_name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
	`, candidate, fqdn); err != nil {
		return uuid.UUID{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO domains (domain, company_id, is_primary, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (domain) DO NOTHING
	`, fqdn, candidate)
	if err != nil {
		return uuid.UUID{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return uuid.UUID{}, err
	}

	if affected == 0 {
		// Lost the race (or the domain already existed): read back the
		// actual owner; the deferred rollback discards our candidate company.
		var existing uuid.UUID
		if err := tx.QueryRowContext(ctx, `SELECT company_id FROM domains WHERE domain = $1`, fqdn).Scan(&existing); err != nil {
			return uuid.UUID{}, err
		}
		return existing, nil
	}

	return candidate, tx.Commit()
}

// UpsertContactEmail creates a Contact + EmailAddress if the address is
// new, bound to companyID; a no-op (returning the existing contact)
// otherwise.
func (s *Postgres) UpsertContactEmail(ctx context.Context, addr, fqdn string, name *string, companyID uuid.UUID) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer tx.Rollback()

	candidate := uuid.New()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contacts (id, company_id, name, recent_threads, created_at, updated_at)
		VALUES ($1, $2, $3, '[]', NOW(), NOW())
	`, candidate, companyID, name); err != nil {
		return uuid.UUID{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO email_addresses (address, contact_id, domain, observed_name, active, recent_threads, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, '[]', NOW(), NOW())
		ON CONFLICT (address) DO NOTHING
	`, addr, candidate, fqdn, name)
	if err != nil {
		return uuid.UUID{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return uuid.UUID{}, err
	}

	if affected == 0 {
		// The deferred rollback discards our candidate contact.
		var existing uuid.UUID
		if err := tx.QueryRowContext(ctx, `SELECT contact_id FROM email_addresses WHERE address = $1`, addr).Scan(&existing); err != nil {
			return uuid.UUID{}, err
		}
		return existing, nil
	}

	return candidate, tx.Commit()
}

// ApplyDeltas commits every accumulated contribution from one message as
// a single transaction: either every entity's counters, first/last-seen,
// thread references, and name upgrades land, or none do (spec §4.4 step
// 11, §4.3 "fully-committed or fully-rolled-back").
func (s *Postgres) ApplyDeltas(ctx context.Context, batch *DeltaBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, d := range batch.Companies {
		if _, err := tx.ExecContext(ctx, `
			UPDATE companies SET
				emails_to = emails_to + $1,
				emails_from = emails_from + $2,
				emails_included = emails_included + $3,
				first_seen = LEAST(COALESCE(first_seen, $4), $4),
				last_seen = GREATEST(COALESCE(last_seen, $4), $4),
				updated_at = NOW()
			WHERE id = $5
		`, d.To, d.From, d.Included, d.At, id); err != nil {
			return fmt.Errorf("update company %s: %w", id, err)
		}
	}

	for fqdn, d := range batch.Domains {
		if _, err := tx.ExecContext(ctx, `
			UPDATE domains SET
				emails_to = emails_to + $1,
				emails_from = emails_from + $2,
				emails_included = emails_included + $3,
				first_seen = LEAST(COALESCE(first_seen, $4), $4),
				last_seen = GREATEST(COALESCE(last_seen, $4), $4),
				updated_at = NOW()
			WHERE domain = $5
		`, d.To, d.From, d.Included, d.At, fqdn); err != nil {
			return fmt.Errorf("update domain %s: %w", fqdn, err)
		}
	}

	for id, cd := range batch.Contacts {
		if err := applyThreadedDelta(ctx, tx, "contacts", "id", id, cd); err != nil {
			return fmt.Errorf("update contact %s: %w", id, err)
		}
	}

	for addr, ed := range batch.Emails {
		if err := applyThreadedDelta(ctx, tx, "email_addresses", "address", addr, ed); err != nil {
			return fmt.Errorf("update email %s: %w", addr, err)
		}
	}

	for id, name := range batch.ContactNameUpgrades {
		if _, err := tx.ExecContext(ctx, `
			UPDATE contacts SET name = $1, updated_at = NOW() WHERE id = $2 AND name IS NULL
		`, name, id); err != nil {
			return fmt.Errorf("upgrade contact name %s: %w", id, err)
		}
	}

	for addr, name := range batch.EmailNameUpgrades {
		if _, err := tx.ExecContext(ctx, `
			UPDATE email_addresses SET observed_name = $1, updated_at = NOW() WHERE address = $2 AND observed_name IS NULL
		`, name, addr); err != nil {
			return fmt.Errorf("upgrade email observed_name %s: %w", addr, err)
		}
	}

	return tx.Commit()
}

// applyThreadedDelta performs the read-modify-write of the recent_threads
// JSONB column (locked FOR UPDATE so it is safe under the store's
// concurrency policy even though it also rides inside the single
// per-message transaction) alongside the counter/seen-bound update, for
// either the contacts or email_addresses table.
func applyThreadedDelta(ctx context.Context, tx *sql.Tx, table, keyColumn string, key any, cd ContactDelta) error {
	var raw []byte
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT recent_threads FROM %s WHERE %s = $1 FOR UPDATE`, table, keyColumn),
		key,
	).Scan(&raw); err != nil {
		return err
	}
	threads, err := DecodeThreadList(raw)
	if err != nil {
		return err
	}
	threads = threads.Upsert(cd.Thread)
	encoded, err := threads.Encode()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET
			emails_to = emails_to + $1,
			emails_from = emails_from + $2,
			emails_included = emails_included + $3,
			first_seen = LEAST(COALESCE(first_seen, $4), $4),
			last_seen = GREATEST(COALESCE(last_seen, $4), $4),
			recent_threads = $5,
			updated_at = NOW()
		WHERE %s = $6
	`, table, keyColumn), cd.To, cd.From, cd.Included, cd.At, encoded, key)
	return err
}

// SetContactNameIfNull upgrades a Contact's name from null exactly once
// (invariant I9), exposed standalone for administrative/backfill use;
// ApplyDeltas folds the same statement into its batch for the common
// per-message path.
func (s *Postgres) SetContactNameIfNull(ctx context.Context, contactID uuid.UUID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET name = $1, updated_at = NOW() WHERE id = $2 AND name IS NULL
	`, name, contactID)
	return err
}

// MarkProcessed records a message id as counted. Called before the
// mutation batch (spec §4.5 rationale: guarantees forward progress at
// the cost of under-counting a crash-mid-message).
func (s *Postgres) MarkProcessed(ctx context.Context, messageID, account string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (message_id, account, recorded_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, account)
	return err
}

// HasProcessed reports whether a message id has already been counted.
func (s *Postgres) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	return exists, err
}

// ReadSyncState reads the sync cursor for an account. A never-synced
// account returns a zero-value SyncState (no error); the Coordinator
// treats a nil BatchDay as "start cold catch-up from the beginning."
func (s *Postgres) ReadSyncState(ctx context.Context, account string) (domain.SyncState, error) {
	var st domain.SyncState
	st.Account = account
	err := s.db.QueryRowContext(ctx, `
		SELECT provider_cursor, last_sync_at, batch_day, page_token, page_number
		FROM sync_state WHERE account = $1
	`, account).Scan(&st.ProviderCursor, &st.LastSyncAt, &st.BatchDay, &st.PageToken, &st.PageNumber)
	if err == sql.ErrNoRows {
		return st, nil
	}
	return st, err
}

// WriteSyncState is a partial upsert: fields left nil in update are
// preserved from the existing row (spec §4.3), except PageToken, which
// is explicitly cleared when update.ClearPageToken is set (the
// day-rollover and next-page-token-absent cases of the coordinator).
func (s *Postgres) WriteSyncState(ctx context.Context, account string, update domain.SyncStateUpdate) error {
	var pageNumber any
	if update.PageNumber != nil {
		pageNumber = *update.PageNumber
	}
	var pageToken any
	if update.PageToken != nil {
		pageToken = *update.PageToken
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (account, provider_cursor, last_sync_at, batch_day, page_token, page_number)
		VALUES ($1, $2, NOW(), $3, $4, COALESCE($5, 0))
		ON CONFLICT (account) DO UPDATE SET
			provider_cursor = COALESCE(EXCLUDED.provider_cursor, sync_state.provider_cursor),
			last_sync_at = NOW(),
			batch_day = COALESCE(EXCLUDED.batch_day, sync_state.batch_day),
			page_token = CASE
				WHEN $6 THEN NULL
				WHEN EXCLUDED.page_token IS NOT NULL THEN EXCLUDED.page_token
				ELSE sync_state.page_token
			END,
			page_number = COALESCE($5, sync_state.page_number)
	`, account, update.ProviderCursor, update.BatchDay, pageToken, pageNumber, update.ClearPageToken)
	return err
}

// DomainBlacklisted reports whether fqdn is in the persisted blacklist.
func (s *Postgres) DomainBlacklisted(ctx context.Context, fqdn string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blacklist WHERE domain = $1)`, fqdn,
	).Scan(&exists)
	return exists, err
}

// CountBlacklistedDomains backs the blacklist cache's freshness probe.
func (s *Postgres) CountBlacklistedDomains(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blacklist`).Scan(&count)
	return count, err
}

// AllBlacklistedDomains snapshots the full persisted domain set.
func (s *Postgres) AllBlacklistedDomains(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM blacklist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var fqdn string
		if err := rows.Scan(&fqdn); err != nil {
			return nil, err
		}
		out[fqdn] = struct{}{}
	}
	return out, rows.Err()
}

// AddBlacklistEntry inserts or replaces a blacklist row.
func (s *Postgres) AddBlacklistEntry(ctx context.Context, fqdn string, category domain.Category, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blacklist (domain, category, source, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (domain) DO UPDATE SET category = EXCLUDED.category, source = EXCLUDED.source
	`, fqdn, category, source)
	return err
}

// RemoveBlacklistEntry deletes a blacklist row.
func (s *Postgres) RemoveBlacklistEntry(ctx context.Context, fqdn string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE domain = $1`, fqdn)
	return err
}

// ListBlacklistEntries lists the blacklist, optionally filtered to one
// category.
func (s *Postgres) ListBlacklistEntries(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error) {
	var rows *sql.Rows
	var err error
	if category != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT domain, category, source, created_at FROM blacklist WHERE category = $1 ORDER BY domain`, *category)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT domain, category, source, created_at FROM blacklist ORDER BY domain`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BlacklistEntry, 0)
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.Domain, &e.Category, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCompany reads one Company by id.
func (s *Postgres) GetCompany(ctx context.Context, id uuid.UUID) (domain.Company, error) {
	var c domain.Company
	c.ID = id
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, emails_to, emails_from, emails_included,
		       meetings_completed, meetings_upcoming, first_seen, last_seen,
		       created_at, updated_at
		FROM companies WHERE id = $1
	`, id).Scan(&c.DisplayName, &c.EmailsTo, &c.EmailsFrom, &c.EmailsIncluded,
		&c.MeetingsCompleted, &c.MeetingsUpcoming, &c.FirstSeen, &c.LastSeen,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Company{}, apierr.New(apierr.NotFound, "postgres.GetCompany", fmt.Errorf("company %s not found", id))
	}
	if err != nil {
		return domain.Company{}, apierr.New(apierr.StoreTransient, "postgres.GetCompany", err)
	}
	return c, nil
}

// ListCompanies reads a page of companies ordered by creation time.
func (s *Postgres) ListCompanies(ctx context.Context, limit, offset int) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, emails_to, emails_from, emails_included,
		       meetings_completed, meetings_upcoming, first_seen, last_seen,
		       created_at, updated_at
		FROM companies ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Company, 0)
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.EmailsTo, &c.EmailsFrom, &c.EmailsIncluded,
			&c.MeetingsCompleted, &c.MeetingsUpcoming, &c.FirstSeen, &c.LastSeen,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListContactsByCompany reads every contact at one company, decoding
// each contact's recent_threads JSONB column.
func (s *Postgres) ListContactsByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, recent_threads, emails_to, emails_from, emails_included,
		       meetings_completed, meetings_upcoming, first_seen, last_seen, created_at, updated_at
		FROM contacts WHERE company_id = $1 ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Contact, 0)
	for rows.Next() {
		var c domain.Contact
		var raw []byte
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &raw, &c.EmailsTo, &c.EmailsFrom, &c.EmailsIncluded,
			&c.MeetingsCompleted, &c.MeetingsUpcoming, &c.FirstSeen, &c.LastSeen, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		threads, err := DecodeThreadList(raw)
		if err != nil {
			return nil, err
		}
		c.RecentThreads = []domain.ThreadRef(threads)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListDomainsByCompany reads every FQDN registered to one company, so
// the caller can blacklist them before the company is deleted (spec §6).
func (s *Postgres) ListDomainsByCompany(ctx context.Context, companyID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM domains WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var fqdn string
		if err := rows.Scan(&fqdn); err != nil {
			return nil, err
		}
		out = append(out, fqdn)
	}
	return out, rows.Err()
}

// DeleteCompany cascades through Domain/Contact/EmailAddress rows (I1).
// The caller (the admin query-surface service) blacklists the company's
// domains first, per spec §6 — see queryapi.handleDeleteCompany.
func (s *Postgres) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	return err
}
