// Package coordinator implements the Ingestion Coordinator (spec §4.5):
// the per-account state machine that drives cold day-windowed catch-up,
// hot incremental sync off a provider history cursor, and a last-resort
// full rescan, persisting the cursor at every page boundary so a crash
// restart never re-counts a message.
//
// Grounded on the niraj8-things gmail-sync reference's FullScan /
// SyncSinceHistory split (other_examples/589d5f57_…gmail-sync.go.go):
// that file's worker-pool detail-fetch fan-out ahead of in-order
// processing is reused here for BatchSync's page-level detail fetch.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailgraph/relationshipd/internal/apierr"
	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/ingest/processor"
	"github.com/mailgraph/relationshipd/internal/provider"
	"github.com/mailgraph/relationshipd/internal/store"
)

// DefaultStartDate is the cold-batch catch-up floor: 2000-01-01, chosen
// over the provider's real launch date so imported/migrated mail is
// captured too (spec §4.5 rationale).
var DefaultStartDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultPageSize is the cold-batch page size passed to ListMessages.
const DefaultPageSize = 100

// FullSyncPageSize is the page size full_sync walks with, per spec §4.5.
const FullSyncPageSize = 100

// detailWorkers bounds the parallel fan-out fetching full message bodies
// for one page's ids. list_messages order must be preserved for the
// processor, but the detail fetches themselves are safe to parallelize
// ahead of in-order processing — same shape as the gmail-sync reference's
// worker pool, generalized to a small fixed pool rather than
// per-message goroutines.
const detailWorkers = 8

// Blacklist is the narrow port the Coordinator needs to refresh the
// process-wide cache at the start of every invocation (spec §5: "the
// in-memory cache is ... refreshed at invocation start").
type Blacklist interface {
	LoadCache(ctx context.Context) error
}

// MessageError records a per-message processing failure that did not
// abort the page (spec §4.6: "the invocation is not aborted").
type MessageError struct {
	MessageID string
	Err       error
}

// Result summarizes one Coordinator invocation.
type Result struct {
	Mode              string // "cold-batch", "caught-up", "hot-incremental", "full"
	MessagesListed    int
	MessagesProcessed int
	CompaniesCreated  int
	DomainsCreated    int
	ContactsCreated   int
	EmailsCreated     int
	Errors            []MessageError
}

func (r *Result) absorb(pr processor.Result) {
	r.CompaniesCreated += pr.CompaniesCreated
	r.DomainsCreated += pr.DomainsCreated
	r.ContactsCreated += pr.ContactsCreated
	r.EmailsCreated += pr.EmailsCreated
}

// Coordinator drives one account through the sync state machine. One
// instance is owned by exactly one per-account goroutine (spec §5:
// "each account runs on its own logical thread"); the *store.Postgres it
// shares with other accounts' Coordinators is safe for concurrent use.
type Coordinator struct {
	Account   domain.Account
	store     store.Store
	adapter   provider.Adapter
	proc      *processor.Processor
	blacklist Blacklist
	clock     store.Clock
	startDate time.Time
	pageSize  int
}

// New builds a Coordinator for one account.
func New(account domain.Account, s store.Store, adapter provider.Adapter, proc *processor.Processor, bl Blacklist) *Coordinator {
	return &Coordinator{
		Account:   account,
		store:     s,
		adapter:   adapter,
		proc:      proc,
		blacklist: bl,
		clock:     store.RealClock,
		startDate: DefaultStartDate,
		pageSize:  DefaultPageSize,
	}
}

// RunOnce is the Scheduler contract's entry point (spec §6): one
// self-contained invocation that advances the account as far as the
// wall-clock budget allows, then returns with SyncState already durable.
// It never assumes in-memory state carries across invocations.
func (c *Coordinator) RunOnce(ctx context.Context, budget time.Duration) (Result, error) {
	if err := c.blacklist.LoadCache(ctx); err != nil {
		// The process-wide cache tolerates being unavailable (Design Note
		// §9): fall back to direct point-queries rather than aborting.
		_ = err
	}

	// The wall-clock budget is real elapsed time, independent of the
	// (possibly test-injected) Clock used for "today" in the day-window
	// state machine below — the two are orthogonal concerns.
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	total := Result{}
	for {
		state, err := c.store.ReadSyncState(ctx, c.Account.Label)
		if err != nil {
			return total, apierr.New(apierr.StoreTransient, "coordinator.RunOnce", err)
		}

		today := c.clock.Now().UTC().Truncate(24 * time.Hour)
		caughtUp := state.BatchDay != nil && state.BatchDay.After(today)
		if caughtUp {
			r, err := c.IncrementalSync(ctx)
			total.merge(r)
			return total, err
		}

		if time.Since(start) > budget {
			return total, nil
		}
		r, err := c.BatchSync(ctx)
		total.merge(r)
		if err != nil {
			return total, err
		}
		// Loop back to re-read SyncState: either another cold page is
		// due, or this page's advance just crossed into caught-up and
		// the next iteration hands off to the hot path above.
	}
}

func (r *Result) merge(o Result) {
	r.Mode = o.Mode
	r.MessagesListed += o.MessagesListed
	r.MessagesProcessed += o.MessagesProcessed
	r.CompaniesCreated += o.CompaniesCreated
	r.DomainsCreated += o.DomainsCreated
	r.ContactsCreated += o.ContactsCreated
	r.EmailsCreated += o.EmailsCreated
	r.Errors = append(r.Errors, o.Errors...)
}

// BatchSync runs one page of the cold day-windowed catch-up (spec
// §4.5). It persists SyncState once the page has been listed (and, when
// non-empty, processed), so a crash restart resumes from where this
// invocation left off. The caught-up return and every error return leave
// SyncState unchanged.
func (c *Coordinator) BatchSync(ctx context.Context) (Result, error) {
	state, err := c.store.ReadSyncState(ctx, c.Account.Label)
	if err != nil {
		return Result{}, apierr.New(apierr.StoreTransient, "coordinator.BatchSync", err)
	}

	batchDay := c.startDate
	if state.BatchDay != nil {
		batchDay = *state.BatchDay
	}
	today := c.clock.Now().UTC().Truncate(24 * time.Hour)
	if batchDay.After(today) {
		return Result{Mode: "caught-up"}, nil
	}

	// Fetch the provider's current cursor once at the start of the
	// invocation so that, once batch_day advances past today, the hot
	// path already has a starting point (spec §4.5 last bullet).
	profile, err := c.adapter.GetProfile(ctx)
	if err != nil {
		return Result{}, apierr.New(apierr.ProviderTransient, "coordinator.BatchSync.GetProfile", err)
	}

	pageToken := ""
	if state.PageToken != nil {
		pageToken = *state.PageToken
	}
	q := fmt.Sprintf("after:%s before:%s", batchDay.Format("2006/01/02"), batchDay.AddDate(0, 0, 1).Format("2006/01/02"))

	list, err := c.adapter.ListMessages(ctx, q, pageToken, c.pageSize)
	if err != nil {
		return Result{}, apierr.New(apierr.ProviderTransient, "coordinator.BatchSync.ListMessages", err)
	}

	result := Result{Mode: "cold-batch", MessagesListed: len(list.Messages)}

	if len(list.Messages) == 0 {
		nextDay := batchDay.AddDate(0, 0, 1)
		zero := 0
		if err := c.store.WriteSyncState(ctx, c.Account.Label, domain.SyncStateUpdate{
			BatchDay:       &nextDay,
			ClearPageToken: true,
			PageNumber:     &zero,
			ProviderCursor: &profile.HistoryID,
		}); err != nil {
			return result, apierr.New(apierr.StoreTransient, "coordinator.BatchSync.WriteSyncState", err)
		}
		return result, nil
	}

	if err := c.processPage(ctx, list.Messages, &result); err != nil {
		return result, err
	}

	update := domain.SyncStateUpdate{ProviderCursor: &profile.HistoryID}
	if list.NextPageToken != "" {
		update.PageToken = &list.NextPageToken
		update.BatchDay = &batchDay
		pn := state.PageNumber + 1
		update.PageNumber = &pn
	} else {
		nextDay := batchDay.AddDate(0, 0, 1)
		update.BatchDay = &nextDay
		update.ClearPageToken = true
		zero := 0
		update.PageNumber = &zero
	}
	if err := c.store.WriteSyncState(ctx, c.Account.Label, update); err != nil {
		return result, apierr.New(apierr.StoreTransient, "coordinator.BatchSync.WriteSyncState", err)
	}
	return result, nil
}

// IncrementalSync runs one invocation of the hot path: pulling history
// events since the persisted provider cursor (spec §4.5). With no
// recorded cursor it delegates to FullSync; a stale cursor (404/
// ErrCursorExpired) also falls back to FullSync.
func (c *Coordinator) IncrementalSync(ctx context.Context) (Result, error) {
	state, err := c.store.ReadSyncState(ctx, c.Account.Label)
	if err != nil {
		return Result{}, apierr.New(apierr.StoreTransient, "coordinator.IncrementalSync", err)
	}
	if state.ProviderCursor == nil {
		return c.FullSync(ctx)
	}

	result := Result{Mode: "hot-incremental"}
	cursor := *state.ProviderCursor
	pageToken := ""
	var newestHistoryID string

	for {
		hist, err := c.adapter.GetHistory(ctx, cursor, pageToken)
		if err != nil {
			if err == provider.ErrCursorExpired || apierr.Is(err, apierr.ProviderCursorExpired) {
				return c.FullSync(ctx)
			}
			return result, apierr.New(apierr.ProviderTransient, "coordinator.IncrementalSync.GetHistory", err)
		}
		if hist.HistoryID != "" {
			newestHistoryID = hist.HistoryID
		}

		ids := make([]string, 0, len(hist.Events))
		for _, ev := range hist.Events {
			ids = append(ids, ev.MessageID)
		}
		result.MessagesListed += len(ids)
		if len(ids) > 0 {
			refs := make([]provider.MessageRef, len(ids))
			for i, id := range ids {
				refs[i] = provider.MessageRef{ID: id}
			}
			if err := c.processPage(ctx, refs, &result); err != nil {
				return result, err
			}
		}

		if hist.NextPageToken == "" {
			break
		}
		pageToken = hist.NextPageToken
	}

	if newestHistoryID == "" {
		newestHistoryID = cursor
	}
	if err := c.store.WriteSyncState(ctx, c.Account.Label, domain.SyncStateUpdate{ProviderCursor: &newestHistoryID}); err != nil {
		return result, apierr.New(apierr.StoreTransient, "coordinator.IncrementalSync.WriteSyncState", err)
	}
	return result, nil
}

// FullSync walks every message in pages of 100, without the per-day
// window — the last-resort reconciliation path used when no provider
// cursor is recorded or the recorded one has expired.
func (c *Coordinator) FullSync(ctx context.Context) (Result, error) {
	result := Result{Mode: "full"}
	pageToken := ""
	for {
		list, err := c.adapter.ListMessages(ctx, "", pageToken, FullSyncPageSize)
		if err != nil {
			return result, apierr.New(apierr.ProviderTransient, "coordinator.FullSync.ListMessages", err)
		}
		result.MessagesListed += len(list.Messages)
		if len(list.Messages) > 0 {
			if err := c.processPage(ctx, list.Messages, &result); err != nil {
				return result, err
			}
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	profile, err := c.adapter.GetProfile(ctx)
	if err != nil {
		return result, apierr.New(apierr.ProviderTransient, "coordinator.FullSync.GetProfile", err)
	}
	if err := c.store.WriteSyncState(ctx, c.Account.Label, domain.SyncStateUpdate{ProviderCursor: &profile.HistoryID}); err != nil {
		return result, apierr.New(apierr.StoreTransient, "coordinator.FullSync.WriteSyncState", err)
	}
	return result, nil
}

// processPage fetches full message bodies for refs (fanned out across a
// bounded worker pool) then runs dedup + the Message Processor over them
// in list order. Per-message errors are recorded on result and do not
// abort the page (spec §4.6); a failure fetching a message's body is
// likewise recorded rather than raised.
func (c *Coordinator) processPage(ctx context.Context, refs []provider.MessageRef, result *Result) error {
	messages, fetchErrs := c.fetchDetails(ctx, refs)

	for _, ref := range refs {
		msg, ok := messages[ref.ID]
		if !ok {
			result.Errors = append(result.Errors, MessageError{MessageID: ref.ID, Err: fetchErrs[ref.ID]})
			continue
		}

		processed, err := c.store.HasProcessed(ctx, msg.ID)
		if err != nil {
			return apierr.New(apierr.StoreTransient, "coordinator.processPage.HasProcessed", err)
		}
		if processed {
			continue
		}

		// Mark processed before the commit batch (optimistic, spec §4.5
		// rationale): on crash the message is skipped on retry rather
		// than double-counted. An administrator can clear the row to
		// force a reprocess.
		if err := c.store.MarkProcessed(ctx, msg.ID, c.Account.Label); err != nil {
			return apierr.New(apierr.StoreTransient, "coordinator.processPage.MarkProcessed", err)
		}

		raw := processor.RawMessage{
			ID:                  msg.ID,
			ThreadID:            msg.ThreadID,
			From:                msg.From,
			To:                  msg.To,
			Cc:                  msg.Cc,
			Date:                msg.Date,
			InternalTimestampMS: msg.InternalTimestamp.UnixMilli(),
		}
		pr, err := c.proc.Process(ctx, c.Account.Label, c.Account.SelfAddress, raw)
		if err != nil {
			result.Errors = append(result.Errors, MessageError{MessageID: msg.ID, Err: err})
			continue
		}
		result.absorb(pr)
		result.MessagesProcessed++
	}
	return nil
}

// fetchDetails fans out GetMessage calls for refs across a bounded
// worker pool. Order is not preserved by the fetch itself — processPage
// re-establishes list order by looking results up from the returned map
// — since the processor only needs in-order *processing*, not in-order
// fetching.
func (c *Coordinator) fetchDetails(ctx context.Context, refs []provider.MessageRef) (map[string]provider.Message, map[string]error) {
	type job struct{ id string }
	jobs := make(chan job, len(refs))
	for _, r := range refs {
		jobs <- job{id: r.ID}
	}
	close(jobs)

	var mu sync.Mutex
	messages := make(map[string]provider.Message, len(refs))
	errs := make(map[string]error)

	workers := detailWorkers
	if workers > len(refs) {
		workers = len(refs)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					mu.Lock()
					errs[j.id] = ctx.Err()
					mu.Unlock()
					continue
				default:
				}
				msg, err := c.adapter.GetMessage(ctx, j.id)
				mu.Lock()
				if err != nil {
					errs[j.id] = err
				} else {
					messages[j.id] = msg
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return messages, errs
}
