// Package provider defines the Mail Provider Adapter contract (spec §6)
// and the mock Gmail/Graph clients that satisfy it for this deployment.
package provider

import (
	"context"
	"errors"
	"time"
)

// Message is one provider message, fully resolved with headers and the
// provider's own receive timestamp. Date is the raw RFC 5322 header
// value; the Message Processor resolves it to a time.Time, falling back
// to InternalTimestamp on a parse failure.
type Message struct {
	ID                string
	ThreadID          string
	From              string
	To                string
	Cc                string
	Date              string
	InternalTimestamp time.Time
}

// MessageRef is the lightweight listing entry: id and thread id only,
// before the full message body is fetched.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListResult is the response shape of ListMessages.
type ListResult struct {
	Messages          []MessageRef
	NextPageToken     string
	ResultSizeEstimate int
}

// HistoryEvent is one "message added to the mailbox" event surfaced by
// GetHistory. Only additions are modeled; the core never deletes entities
// in response to mailbox changes.
type HistoryEvent struct {
	MessageID string
}

// HistoryResult is the response shape of GetHistory.
type HistoryResult struct {
	Events        []HistoryEvent
	HistoryID     string
	NextPageToken string
}

// Profile identifies the mailbox: its current history cursor and the
// address that ingestion treats as "self" for direction classification.
type Profile struct {
	HistoryID string
	Address   string
}

// ErrCursorExpired is returned by GetHistory when the provider can no
// longer resume from the given cursor (Gmail's 404 on an aged-out
// historyId, Graph's resync-required delta token). The Coordinator
// catches this and falls back to FullSync.
var ErrCursorExpired = errors.New("provider cursor expired")

// Adapter is the contract the core consumes from a mail provider,
// independent of which API backs it (spec §6).
type Adapter interface {
	// ListMessages lists message refs matching q, page by page. q
	// supports at minimum "after:YYYY/MM/DD before:YYYY/MM/DD".
	ListMessages(ctx context.Context, q string, pageToken string, maxResults int) (ListResult, error)
	// GetMessage fetches one full message.
	GetMessage(ctx context.Context, id string) (Message, error)
	// BatchGetMessages fetches several full messages; implementations
	// may fan these out in parallel.
	BatchGetMessages(ctx context.Context, ids []string) ([]Message, error)
	// GetHistory pages through mailbox change events since startCursor.
	GetHistory(ctx context.Context, startCursor string, pageToken string) (HistoryResult, error)
	// GetProfile returns the mailbox's current cursor and self address.
	GetProfile(ctx context.Context) (Profile, error)
}
