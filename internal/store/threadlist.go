package store

import (
	"encoding/json"
	"sort"

	"github.com/mailgraph/relationshipd/internal/domain"
)

// ThreadList is the in-memory, ordered form of the `recent_threads` JSONB
// column: most-recent-first, deduplicated by ThreadID, capped at
// domain.MaxRecentThreads. The column is treated as an opaque JSON blob
// on the wire and as a tagged value-object everywhere else: decode on
// read, mutate as this type, encode on write.
type ThreadList []domain.ThreadRef

// DecodeThreadList parses the JSONB column value. A nil or empty blob
// decodes to an empty list.
func DecodeThreadList(raw []byte) (ThreadList, error) {
	if len(raw) == 0 {
		return ThreadList{}, nil
	}
	var out ThreadList
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode serializes the list back to its JSONB representation.
func (l ThreadList) Encode() ([]byte, error) {
	if l == nil {
		l = ThreadList{}
	}
	return json.Marshal(l)
}

// Upsert removes any existing entry for ref.ThreadID, prepends ref, and
// truncates to domain.MaxRecentThreads. This is the read-modify-write
// step 10 of the message processor performs once per message per
// Contact/EmailAddress touched.
func (l ThreadList) Upsert(ref domain.ThreadRef) ThreadList {
	out := make(ThreadList, 0, len(l)+1)
	out = append(out, ref)
	for _, existing := range l {
		if existing.ThreadID == ref.ThreadID {
			continue
		}
		out = append(out, existing)
	}
	if len(out) > domain.MaxRecentThreads {
		out = out[:domain.MaxRecentThreads]
	}
	return out
}

// sortedByTimestampDesc reports whether the list is ordered by timestamp
// descending (equal adjacent timestamps are accepted) — used only by
// tests asserting property P3.
func (l ThreadList) sortedByTimestampDesc() bool {
	return sort.SliceIsSorted(l, func(i, j int) bool {
		return l[i].Timestamp.After(l[j].Timestamp)
	})
}
