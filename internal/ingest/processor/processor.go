// Package processor implements the Message Processor (spec §4.4): the
// per-message pipeline that extracts addresses, filters self and
// blacklisted ones, resolves or creates the four rollup entities, and
// folds the message's contribution into their stats and recent-threads
// lists.
package processor

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/mailgraph/relationshipd/internal/address"
	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/store"
)

// Blacklist is the narrow port the processor needs from the decision
// engine.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, addr string) (bool, error)
}

// RawMessage is the processor's input: one provider message with enough
// headers resolved to drive classification.
type RawMessage struct {
	ID                  string
	ThreadID            string
	From                string
	To                  string
	Cc                  string
	Date                string
	InternalTimestampMS int64
}

// Result is the per-invocation summary returned to the Coordinator.
type Result struct {
	CompaniesCreated int
	DomainsCreated   int
	ContactsCreated  int
	EmailsCreated    int
}

// Processor wires the Blacklist Engine and Entity Store together around
// the address parser.
type Processor struct {
	store     store.Store
	blacklist Blacklist
}

// New builds a Processor.
func New(s store.Store, bl Blacklist) *Processor {
	return &Processor{store: s, blacklist: bl}
}

type taggedAddress struct {
	address.Parsed
	role string // "from", "to", "cc"
}

// Process runs the full §4.4 algorithm for one message against one
// account. account is the opaque label stored on recent-threads entries;
// selfAddress is the mailbox's own address for direction classification.
func (p *Processor) Process(ctx context.Context, account, selfAddress string, msg RawMessage) (Result, error) {
	messageDate := resolveDate(msg.Date, msg.InternalTimestampMS)

	tagged := extractAddresses(msg)
	sentBySelf := false
	for _, t := range tagged {
		if t.role == "from" && t.Address == selfAddress {
			sentBySelf = true
			break
		}
	}

	kept := make([]taggedAddress, 0, len(tagged))
	for _, t := range tagged {
		if t.Address == selfAddress {
			continue
		}
		blacklisted, err := p.blacklist.IsBlacklisted(ctx, t.Address)
		if err != nil {
			return Result{}, err
		}
		if blacklisted {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return Result{}, nil
	}

	uniqueDomains := make(map[string]struct{})
	uniqueAddrs := make(map[string]taggedAddress)
	for _, t := range kept {
		uniqueDomains[t.Domain] = struct{}{}
		// Later occurrences of the same address in one message (e.g.
		// present in both To and Cc) keep the first-seen name.
		if _, ok := uniqueAddrs[t.Address]; !ok {
			uniqueAddrs[t.Address] = t
		}
	}
	domainList := keysOf(uniqueDomains)
	addrList := make([]string, 0, len(uniqueAddrs))
	for a := range uniqueAddrs {
		addrList = append(addrList, a)
	}

	existingDomains, err := p.store.FetchDomains(ctx, domainList)
	if err != nil {
		return Result{}, err
	}
	existingEmails, err := p.store.FetchEmails(ctx, addrList)
	if err != nil {
		return Result{}, err
	}

	var result Result
	domainCompany := make(map[string]uuid.UUID, len(domainList))
	for fqdn := range uniqueDomains {
		if companyID, ok := existingDomains[fqdn]; ok {
			domainCompany[fqdn] = companyID
			continue
		}
		companyID, err := p.store.UpsertCompanyDomain(ctx, fqdn)
		if err != nil {
			return Result{}, err
		}
		domainCompany[fqdn] = companyID
		result.CompaniesCreated++
		result.DomainsCreated++
	}

	addrContact := make(map[string]uuid.UUID, len(addrList))
	addrCompany := make(map[string]uuid.UUID, len(addrList))
	for addr, t := range uniqueAddrs {
		if lookup, ok := existingEmails[addr]; ok {
			addrContact[addr] = lookup.ContactID
			addrCompany[addr] = lookup.CompanyID
			continue
		}
		companyID := domainCompany[t.Domain]
		var name *string
		if t.Name != "" {
			name = &t.Name
		}
		contactID, err := p.store.UpsertContactEmail(ctx, addr, t.Domain, name, companyID)
		if err != nil {
			return Result{}, err
		}
		addrContact[addr] = contactID
		addrCompany[addr] = companyID
		result.ContactsCreated++
		result.EmailsCreated++
	}

	batch := store.NewDeltaBatch()
	for _, t := range kept {
		// Every kept address accumulates a delta, even an all-zero one
		// (spec §4.4 step 9): the first/last-seen bounds and thread
		// reference below are unconditional on appearance, not on the
		// counter firing.
		to, from, included := int64(0), int64(0), int64(0)
		switch {
		case sentBySelf && t.role == "to":
			to = 1
		case !sentBySelf && t.role == "from":
			from = 1
		case t.role == "cc":
			included = 1
		}
		d := domain.Delta{To: to, From: from, Included: included, At: messageDate}
		ref := domain.ThreadRef{ThreadID: msg.ThreadID, Account: account, Timestamp: messageDate}

		companyID := addrCompany[t.Address]
		batch.AddCompany(companyID, d)
		batch.AddDomain(t.Domain, d)
		contactID := addrContact[t.Address]
		batch.AddContact(contactID, d, ref)
		batch.AddEmail(t.Address, d, ref)

		if t.Name == "" {
			continue
		}
		if lookup, ok := existingEmails[t.Address]; ok {
			if lookup.ContactName == nil {
				batch.ContactNameUpgrades[lookup.ContactID] = t.Name
			}
			if lookup.ObservedName == nil {
				batch.EmailNameUpgrades[t.Address] = t.Name
			}
		}
	}

	if err := p.store.ApplyDeltas(ctx, batch); err != nil {
		return Result{}, err
	}
	return result, nil
}

// extractAddresses runs the parser over From/To/Cc and tags every
// result with the header it came from.
func extractAddresses(msg RawMessage) []taggedAddress {
	var out []taggedAddress
	for _, h := range []struct {
		role string
		raw  string
	}{{"from", msg.From}, {"to", msg.To}, {"cc", msg.Cc}} {
		for _, p := range address.ParseHeader(h.raw) {
			out = append(out, taggedAddress{Parsed: p, role: h.role})
		}
	}
	return out
}

// resolveDate parses the RFC 5322 Date header, falling back to the
// provider's internal receive timestamp on any parse failure.
func resolveDate(raw string, internalMS int64) time.Time {
	if raw != "" {
		if parsed, err := mail.ParseDate(raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.UnixMilli(internalMS).UTC()
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
