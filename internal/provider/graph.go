package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mailgraph/relationshipd/internal/apierr"
)

// Graph is a mock of the Microsoft Graph mail API surface, mirroring the
// teacher's MicrosoftClient (a second mocked provider alongside Gmail,
// same port, its own fixture). Real Graph delta tokens are opaque
// strings; this mock's GetHistory uses the same integer position cursor
// as the Gmail mock and rejects a cursor that is not an integer.
type Graph struct {
	selfAddress string
	fixture     []Message
	pageSize    int
}

// NewGraph builds a mock adapter over a fixed message fixture.
func NewGraph(selfAddress string, fixture []Message) *Graph {
	return &Graph{selfAddress: selfAddress, fixture: fixture, pageSize: 50}
}

func (g *Graph) ListMessages(ctx context.Context, q, pageToken string, maxResults int) (ListResult, error) {
	// An empty q is full_sync's "no per-day window" mode (spec §4.5).
	var after, before time.Time
	var err error
	if q != "" {
		after, before, err = parseDateQuery(q)
		if err != nil {
			return ListResult{}, apierr.New(apierr.Validation, "graph.ListMessages", err)
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
			return ListResult{}, apierr.New(apierr.Validation, "graph.ListMessages", fmt.Errorf("bad page token %q", pageToken))
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

func (g *Graph) GetMessage(ctx context.Context, id string) (Message, error) {
	for _, m := range g.fixture {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, apierr.New(apierr.NotFound, "graph.GetMessage", fmt.Errorf("message %q not found", id))
}

func (g *Graph) BatchGetMessages(ctx context.Context, ids []string) ([]Message, error) {
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

func (g *Graph) GetHistory(ctx context.Context, startCursor, pageToken string) (HistoryResult, error) {
	start, err := strconv.Atoi(startCursor)
	if err != nil {
		return HistoryResult{}, apierr.New(apierr.Validation, "graph.GetHistory", fmt.Errorf("bad delta token %q", startCursor))
	}
	if start > len(g.fixture) {
		// Graph signals resync-required by rejecting an aged-out delta
		// token outright, same recovery path as Gmail's 404.
		return HistoryResult{}, ErrCursorExpired
	}

	events := make([]HistoryEvent, 0, len(g.fixture)-start)
	for _, m := range g.fixture[start:] {
		events = append(events, HistoryEvent{MessageID: m.ID})
	}
	return HistoryResult{Events: events, HistoryID: strconv.Itoa(len(g.fixture))}, nil
}

func (g *Graph) GetProfile(ctx context.Context) (Profile, error) {
	return Profile{HistoryID: strconv.Itoa(len(g.fixture)), Address: g.selfAddress}, nil
}

var _ Adapter = (*Graph)(nil)
