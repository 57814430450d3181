package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mailgraph/relationshipd/internal/apierr"
	"github.com/mailgraph/relationshipd/internal/domain"
)

// Memory is an in-process Store used by the processor and coordinator
// unit tests, grounded on the pack's in-memory mail-storage reference
// (a mutex-guarded map-of-maps backing the same narrow port shape,
// generalized here from message storage to the six entity kinds). It is
// not used in production; the daemon always runs against Postgres.
type Memory struct {
	mu sync.Mutex

	companies map[uuid.UUID]domain.Company
	domains   map[string]domain.Domain
	contacts  map[uuid.UUID]domain.Contact
	emails    map[string]domain.EmailAddress
	sync_     map[string]domain.SyncState
	processed map[string]domain.ProcessedMessage
	blacklist map[string]domain.BlacklistEntry
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		companies: make(map[uuid.UUID]domain.Company),
		domains:   make(map[string]domain.Domain),
		contacts:  make(map[uuid.UUID]domain.Contact),
		emails:    make(map[string]domain.EmailAddress),
		sync_:     make(map[string]domain.SyncState),
		processed: make(map[string]domain.ProcessedMessage),
		blacklist: make(map[string]domain.BlacklistEntry),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) FetchDomains(ctx context.Context, fqdns []string) (map[string]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uuid.UUID, len(fqdns))
	for _, fqdn := range fqdns {
		if d, ok := m.domains[fqdn]; ok {
			out[fqdn] = d.CompanyID
		}
	}
	return out, nil
}

func (m *Memory) FetchEmails(ctx context.Context, addrs []string) (map[string]EmailLookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]EmailLookup, len(addrs))
	for _, addr := range addrs {
		e, ok := m.emails[addr]
		if !ok {
			continue
		}
		c := m.contacts[e.ContactID]
		out[addr] = EmailLookup{ContactID: e.ContactID, ContactName: c.Name, ObservedName: e.ObservedName, CompanyID: c.CompanyID}
	}
	return out, nil
}

func (m *Memory) UpsertCompanyDomain(ctx context.Context, fqdn string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.domains[fqdn]; ok {
		return d.CompanyID, nil
	}
	companyID := uuid.New()
	name := fqdn
	now := RealClock.Now()
	m.companies[companyID] = domain.Company{ID: companyID, DisplayName: &name, CreatedAt: now, UpdatedAt: now}
	m.domains[fqdn] = domain.Domain{FQDN: fqdn, CompanyID: companyID, IsPrimary: true, CreatedAt: now, UpdatedAt: now}
	return companyID, nil
}

func (m *Memory) UpsertContactEmail(ctx context.Context, addr, fqdn string, name *string, companyID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.emails[addr]; ok {
		return e.ContactID, nil
	}
	contactID := uuid.New()
	now := RealClock.Now()
	m.contacts[contactID] = domain.Contact{ID: contactID, CompanyID: companyID, Name: name, CreatedAt: now, UpdatedAt: now}
	m.emails[addr] = domain.EmailAddress{Address: addr, ContactID: contactID, Domain: fqdn, ObservedName: name, Active: true, CreatedAt: now, UpdatedAt: now}
	return contactID, nil
}

func (m *Memory) ApplyDeltas(ctx context.Context, batch *DeltaBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, d := range batch.Companies {
		c, ok := m.companies[id]
		if !ok {
			return fmt.Errorf("company %s not found", id)
		}
		applyStats(&c.Stats, d)
		c.UpdatedAt = RealClock.Now()
		m.companies[id] = c
	}
	for fqdn, d := range batch.Domains {
		dm, ok := m.domains[fqdn]
		if !ok {
			return fmt.Errorf("domain %s not found", fqdn)
		}
		applyStats(&dm.Stats, d)
		dm.UpdatedAt = RealClock.Now()
		m.domains[fqdn] = dm
	}
	for id, cd := range batch.Contacts {
		c, ok := m.contacts[id]
		if !ok {
			return fmt.Errorf("contact %s not found", id)
		}
		applyStats(&c.Stats, cd.Delta)
		c.RecentThreads = []domain.ThreadRef(ThreadList(c.RecentThreads).Upsert(cd.Thread))
		c.UpdatedAt = RealClock.Now()
		m.contacts[id] = c
	}
	for addr, ed := range batch.Emails {
		e, ok := m.emails[addr]
		if !ok {
			return fmt.Errorf("email %s not found", addr)
		}
		applyStats(&e.Stats, ed.Delta)
		e.RecentThreads = []domain.ThreadRef(ThreadList(e.RecentThreads).Upsert(ed.Thread))
		e.UpdatedAt = RealClock.Now()
		m.emails[addr] = e
	}
	for id, name := range batch.ContactNameUpgrades {
		c := m.contacts[id]
		if c.Name == nil {
			c.Name = &name
			m.contacts[id] = c
		}
	}
	for addr, name := range batch.EmailNameUpgrades {
		e := m.emails[addr]
		if e.ObservedName == nil {
			e.ObservedName = &name
			m.emails[addr] = e
		}
	}
	return nil
}

func applyStats(s *domain.Stats, d domain.Delta) {
	s.EmailsTo += d.To
	s.EmailsFrom += d.From
	s.EmailsIncluded += d.Included
	if s.FirstSeen == nil || d.At.Before(*s.FirstSeen) {
		at := d.At
		s.FirstSeen = &at
	}
	if s.LastSeen == nil || d.At.After(*s.LastSeen) {
		at := d.At
		s.LastSeen = &at
	}
}

func (m *Memory) SetContactNameIfNull(ctx context.Context, contactID uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %s not found", contactID)
	}
	if c.Name == nil {
		c.Name = &name
		m.contacts[contactID] = c
	}
	return nil
}

func (m *Memory) MarkProcessed(ctx context.Context, messageID, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[messageID]; ok {
		return nil
	}
	m.processed[messageID] = domain.ProcessedMessage{MessageID: messageID, Account: account, RecordedAt: RealClock.Now()}
	return nil
}

func (m *Memory) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[messageID]
	return ok, nil
}

func (m *Memory) ReadSyncState(ctx context.Context, account string) (domain.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sync_[account]; ok {
		return st, nil
	}
	return domain.SyncState{Account: account}, nil
}

func (m *Memory) WriteSyncState(ctx context.Context, account string, update domain.SyncStateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.sync_[account]
	st.Account = account
	if update.ProviderCursor != nil {
		st.ProviderCursor = update.ProviderCursor
	}
	if update.BatchDay != nil {
		st.BatchDay = update.BatchDay
	}
	if update.ClearPageToken {
		st.PageToken = nil
	} else if update.PageToken != nil {
		st.PageToken = update.PageToken
	}
	if update.PageNumber != nil {
		st.PageNumber = *update.PageNumber
	}
	now := RealClock.Now()
	st.LastSyncAt = &now
	m.sync_[account] = st
	return nil
}

func (m *Memory) DomainBlacklisted(ctx context.Context, fqdn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[fqdn]
	return ok, nil
}

func (m *Memory) CountBlacklistedDomains(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blacklist), nil
}

func (m *Memory) AllBlacklistedDomains(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.blacklist))
	for d := range m.blacklist {
		out[d] = struct{}{}
	}
	return out, nil
}

func (m *Memory) AddBlacklistEntry(ctx context.Context, fqdn string, category domain.Category, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[fqdn] = domain.BlacklistEntry{Domain: fqdn, Category: category, Source: source, CreatedAt: RealClock.Now()}
	return nil
}

func (m *Memory) RemoveBlacklistEntry(ctx context.Context, fqdn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blacklist, fqdn)
	return nil
}

func (m *Memory) ListBlacklistEntries(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BlacklistEntry, 0)
	for _, e := range m.blacklist {
		if category == nil || e.Category == *category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) GetCompany(ctx context.Context, id uuid.UUID) (domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return domain.Company{}, apierr.New(apierr.NotFound, "memory.GetCompany", fmt.Errorf("company %s not found", id))
	}
	return c, nil
}

func (m *Memory) ListCompanies(ctx context.Context, limit, offset int) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Company, 0, len(m.companies))
	for _, c := range m.companies {
		out = append(out, c)
	}
	if offset >= len(out) {
		return []domain.Company{}, nil
	}
	end := offset + limit
	if end > len(out) || limit <= 0 {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *Memory) ListContactsByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Contact, 0)
	for _, c := range m.contacts {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ListDomainsByCompany(ctx context.Context, companyID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for fqdn, d := range m.domains {
		if d.CompanyID == companyID {
			out = append(out, fqdn)
		}
	}
	return out, nil
}

func (m *Memory) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.companies, id)
	for fqdn, d := range m.domains {
		if d.CompanyID == id {
			delete(m.domains, fqdn)
		}
	}
	for cid, c := range m.contacts {
		if c.CompanyID == id {
			delete(m.contacts, cid)
			for addr, e := range m.emails {
				if e.ContactID == cid {
					delete(m.emails, addr)
				}
			}
		}
	}
	return nil
}

var _ Store = (*Memory)(nil)
