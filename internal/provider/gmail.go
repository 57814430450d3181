package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mailgraph/relationshipd/internal/apierr"
)

// Gmail is a mock of the Gmail API surface this daemon depends on. The
// teacher's GoogleClient returns one hardcoded sample message to
// demonstrate the pipeline shape without real OAuth plumbing; this
// adapter generalizes that approach to a small in-memory fixture so the
// Coordinator's paging and history-cursor logic can be exercised for
// real without network access.
type Gmail struct {
	selfAddress string
	fixture     []Message // ordered oldest-first; historyId == index+1
	pageSize    int
}

// NewGmail builds a mock adapter over a fixed message fixture. In
// production this constructor would instead hold an OAuth-backed
// *gmailv1.Service; the Adapter contract is what the rest of the daemon
// depends on; the call site never imports a Google package.
func NewGmail(selfAddress string, fixture []Message) *Gmail {
	return &Gmail{selfAddress: selfAddress, fixture: fixture, pageSize: 50}
}

func (g *Gmail) ListMessages(ctx context.Context, q, pageToken string, maxResults int) (ListResult, error) {
	// An empty q is full_sync's "no per-day window" mode (spec §4.5):
	// match the whole fixture rather than requiring after:/before:.
	var after, before time.Time
	var err error
	if q != "" {
		after, before, err = parseDateQuery(q)
		if err != nil {
			return ListResult{}, apierr.New(apierr.Validation, "gmail.ListMessages", err)
		}
	}

	var matched []Message
	for _, m := range g.fixture {
		if q != "" && (m.InternalTimestamp.Before(after) || !m.InternalTimestamp.Before(before)) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InternalTimestamp.After(matched[j].InternalTimestamp)
	})

	start := 0
	if pageToken != "" {
		start, err = strconv.Atoi(pageToken)
		if err != nil {
			return ListResult{}, apierr.New(apierr.Validation, "gmail.ListMessages", fmt.Errorf("bad page token %q", pageToken))
		}
	}
	if maxResults <= 0 {
		maxResults = g.pageSize
	}
	end := start + maxResults
	if end > len(matched) {
		end = len(matched)
	}
	if start > len(matched) {
		start = len(matched)
	}

	refs := make([]MessageRef, 0, end-start)
	for _, m := range matched[start:end] {
		refs = append(refs, MessageRef{ID: m.ID, ThreadID: m.ThreadID})
	}

	out := ListResult{Messages: refs, ResultSizeEstimate: len(matched)}
	if end < len(matched) {
		out.NextPageToken = strconv.Itoa(end)
	}
	return out, nil
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (Message, error) {
	for _, m := range g.fixture {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, apierr.New(apierr.NotFound, "gmail.GetMessage", fmt.Errorf("message %q not found", id))
}

func (g *Gmail) BatchGetMessages(ctx context.Context, ids []string) ([]Message, error) {
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		m, err := g.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *Gmail) GetHistory(ctx context.Context, startCursor, pageToken string) (HistoryResult, error) {
	start, err := strconv.Atoi(startCursor)
	if err != nil {
		return HistoryResult{}, apierr.New(apierr.Validation, "gmail.GetHistory", fmt.Errorf("bad cursor %q", startCursor))
	}
	if start > len(g.fixture) {
		// The requested historyId is beyond anything the mailbox ever
		// had: the Gmail equivalent of a 404 on an aged-out historyId.
		return HistoryResult{}, ErrCursorExpired
	}

	events := make([]HistoryEvent, 0, len(g.fixture)-start)
	for _, m := range g.fixture[start:] {
		events = append(events, HistoryEvent{MessageID: m.ID})
	}
	return HistoryResult{Events: events, HistoryID: strconv.Itoa(len(g.fixture))}, nil
}

func (g *Gmail) GetProfile(ctx context.Context) (Profile, error) {
	return Profile{HistoryID: strconv.Itoa(len(g.fixture)), Address: g.selfAddress}, nil
}

// parseDateQuery extracts the [after, before) window from a query
// string of the form "after:YYYY/MM/DD before:YYYY/MM/DD" — the minimum
// grammar spec §6 requires the adapter to support.
func parseDateQuery(q string) (after, before time.Time, err error) {
	fields := strings.Fields(q)
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "after:"):
			after, err = time.Parse("2006/01/02", strings.TrimPrefix(f, "after:"))
		case strings.HasPrefix(f, "before:"):
			before, err = time.Parse("2006/01/02", strings.TrimPrefix(f, "before:"))
		}
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse query %q: %w", q, err)
		}
	}
	if after.IsZero() || before.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("query %q missing after/before bound", q)
	}
	return after, before, nil
}

var _ Adapter = (*Gmail)(nil)
