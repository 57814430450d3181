// Package blacklist implements the decision engine that classifies an
// address as a human relationship worth tracking or a system/marketing
// address to drop. See spec §4.2.
package blacklist

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mailgraph/relationshipd/internal/domain"
)

// Store is the persistence port the Engine needs: existence checks and
// mutators over the persisted domain blacklist. internal/store.Postgres
// implements this.
type Store interface {
	DomainBlacklisted(ctx context.Context, fqdn string) (bool, error)
	CountBlacklistedDomains(ctx context.Context) (int, error)
	AllBlacklistedDomains(ctx context.Context) (map[string]struct{}, error)
	AddBlacklistEntry(ctx context.Context, fqdn string, category domain.Category, source string) error
	RemoveBlacklistEntry(ctx context.Context, fqdn string) error
	ListBlacklistEntries(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error)
}

// nowFunc is overridable in tests so the day-stamp freshness rule is
// exercisable without sleeping across a real midnight.
var nowFunc = time.Now

// snapshot is the process-wide cache entry: the full persisted domain
// set plus the day-stamp and row-count it was taken at, per the Design
// Note's "day+count freshness rule" (day changed, or count differs from
// the recorded count, invalidates the snapshot).
type snapshot struct {
	domains map[string]struct{}
	day     string
	count   int
}

// cacheKey is the single key the process-wide snapshot is stored under;
// the cache only ever holds one entry, but an *lru.Cache gives us a
// bounded, concurrency-safe container for free instead of a bare
// map+mutex, and the same type generalizes cleanly if a future caller
// wants to shard the snapshot per-tenant.
const cacheKey = "domains"

// Engine decides whether an address should be excluded from tracking.
type Engine struct {
	store     Store
	whitelist map[string]struct{}
	cache     *lru.Cache[string, snapshot]
}

// New creates a blacklist Engine. whitelist is the static list of
// domains that are never classified as transactional regardless of
// local-part pattern matches.
func New(store Store, whitelist []string) *Engine {
	wl := make(map[string]struct{}, len(whitelist))
	for _, d := range whitelist {
		wl[strings.ToLower(d)] = struct{}{}
	}
	c, _ := lru.New[string, snapshot](1)
	return &Engine{store: store, whitelist: wl, cache: c}
}

// IsBlacklisted returns true iff the address is either transactional or
// its domain is in the persisted blacklist.
func (e *Engine) IsBlacklisted(ctx context.Context, addr string) (bool, error) {
	if e.IsTransactional(addr) {
		return true, nil
	}
	dom := domainOf(addr)
	if dom == "" {
		return false, nil
	}
	return e.IsDomainBlacklisted(ctx, dom)
}

// IsTransactional classifies an address by pattern alone, with no store
// access: whitelist first, then the ordered regex table.
func (e *Engine) IsTransactional(addr string) bool {
	lower := strings.ToLower(addr)
	dom := domainOf(lower)
	if _, ok := e.whitelist[dom]; ok {
		return false
	}

	local := localPartOf(lower)
	for _, re := range localPartPatterns {
		if re.MatchString(local) {
			return true
		}
	}
	for _, re := range fullAddressPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsDomainBlacklisted looks up the persisted domain set. If a fresh
// cache snapshot is present it serves from memory; otherwise it issues a
// single-row existence probe.
func (e *Engine) IsDomainBlacklisted(ctx context.Context, fqdn string) (bool, error) {
	fqdn = strings.ToLower(fqdn)
	if snap, ok := e.freshSnapshot(ctx); ok {
		_, present := snap.domains[fqdn]
		return present, nil
	}
	return e.store.DomainBlacklisted(ctx, fqdn)
}

// LoadCache snapshots the persisted blacklist into memory. Idempotent:
// safe to call repeatedly, e.g. once per Coordinator invocation.
func (e *Engine) LoadCache(ctx context.Context) error {
	domains, err := e.store.AllBlacklistedDomains(ctx)
	if err != nil {
		return err
	}
	count, err := e.store.CountBlacklistedDomains(ctx)
	if err != nil {
		return err
	}
	e.cache.Add(cacheKey, snapshot{
		domains: domains,
		day:     nowFunc().UTC().Format("2006-01-02"),
		count:   count,
	})
	return nil
}

// freshSnapshot returns the cached snapshot if present and not stale. A
// stale or absent snapshot is not auto-refreshed here: the caller falls
// back to a direct store probe, and LoadCache is expected to run again
// at the next invocation boundary — this tolerates the cache being
// unavailable entirely, per the Design Note.
func (e *Engine) freshSnapshot(ctx context.Context) (snapshot, bool) {
	snap, ok := e.cache.Get(cacheKey)
	if !ok {
		return snapshot{}, false
	}
	if snap.day != nowFunc().UTC().Format("2006-01-02") {
		return snapshot{}, false
	}
	count, err := e.store.CountBlacklistedDomains(ctx)
	if err != nil {
		// Store is unreachable for the freshness probe: serve the
		// snapshot we have rather than failing the whole decision.
		return snap, true
	}
	if count != snap.count {
		return snapshot{}, false
	}
	return snap, true
}

// Add inserts or updates a blacklist entry and, if the cache is
// currently populated, updates it in place so a subsequent lookup in the
// same process sees the change immediately.
func (e *Engine) Add(ctx context.Context, fqdn string, category domain.Category, source string) error {
	fqdn = strings.ToLower(fqdn)
	if err := e.store.AddBlacklistEntry(ctx, fqdn, category, source); err != nil {
		return err
	}
	if snap, ok := e.cache.Get(cacheKey); ok {
		snap.domains[fqdn] = struct{}{}
		snap.count++
		e.cache.Add(cacheKey, snap)
	}
	return nil
}

// Remove deletes a blacklist entry and updates the cache if populated.
func (e *Engine) Remove(ctx context.Context, fqdn string) error {
	fqdn = strings.ToLower(fqdn)
	if err := e.store.RemoveBlacklistEntry(ctx, fqdn); err != nil {
		return err
	}
	if snap, ok := e.cache.Get(cacheKey); ok {
		if _, present := snap.domains[fqdn]; present {
			delete(snap.domains, fqdn)
			snap.count--
			e.cache.Add(cacheKey, snap)
		}
	}
	return nil
}

// List returns blacklist entries, optionally filtered to one category.
func (e *Engine) List(ctx context.Context, category *domain.Category) ([]domain.BlacklistEntry, error) {
	return e.store.ListBlacklistEntries(ctx, category)
}

// SeedPersonalDomains inserts the static free-mail domain list with
// category "personal" if not already present.
func (e *Engine) SeedPersonalDomains(ctx context.Context) error {
	for _, d := range personalDomains {
		present, err := e.store.DomainBlacklisted(ctx, d)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		if err := e.Add(ctx, d, domain.CategoryPersonal, "seed"); err != nil {
			return err
		}
	}
	return nil
}

func domainOf(addr string) string {
	idx := strings.IndexByte(addr, '@')
	if idx < 0 || idx == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[idx+1:])
}

func localPartOf(addr string) string {
	idx := strings.IndexByte(addr, '@')
	if idx < 0 {
		return addr
	}
	return addr[:idx]
}
