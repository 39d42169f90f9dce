// Package replylog records the outcome of every reply dispatch.
//
// The log is append-only and bounded: the oldest entries are evicted once
// the per-account cap is reached. Listing is newest-first, which is the
// order the operator UI consumes.
package replylog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a dispatch attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// MaxPageSize caps the page size of List calls.
const MaxPageSize = 100

// Entry is one recorded dispatch outcome. Entries are never mutated after
// creation.
type Entry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	PostID           string    `json:"post_id"`
	CommentID        string    `json:"comment_id"`
	CommenterID      string    `json:"commenter_id"`
	CommenterHandle  string    `json:"commenter_handle,omitempty"`
	CommentText      string    `json:"comment_text"`
	MatchedKeyword   string    `json:"matched_keyword"`
	ReplyText        string    `json:"reply_text"`
	Status           Status    `json:"status"`
	ProviderMessageID string   `json:"provider_message_id,omitempty"`
	ErrorDetail      string    `json:"error_detail,omitempty"`
}

// Log is the repository of dispatch outcomes.
type Log interface {
	// Append records an entry for an account. ID and Timestamp are assigned
	// if unset. Returns the stored entry.
	Append(accountID string, e Entry) Entry

	// List returns entries newest-first. limit is capped at MaxPageSize;
	// zero or negative means the cap. The second return is the total number
	// of retained entries.
	List(accountID string, limit, offset int) ([]Entry, int)
}

// MemoryLog is a lock-guarded in-memory Log with a per-account retention cap.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string][]Entry // per account, newest first
	maxSize int
}

// NewMemoryLog creates an in-memory log retaining up to maxSize entries per
// account. maxSize <= 0 selects a default of 1000.
func NewMemoryLog(maxSize int) *MemoryLog {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryLog{
		entries: make(map[string][]Entry),
		maxSize: maxSize,
	}
}

// Append implements Log.
func (l *MemoryLog) Append(accountID string, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.entries[accountID]
	// Newest first: prepend.
	list = append([]Entry{e}, list...)
	if len(list) > l.maxSize {
		list = list[:l.maxSize]
	}
	l.entries[accountID] = list

	return e
}

// List implements Log.
func (l *MemoryLog) List(accountID string, limit, offset int) ([]Entry, int) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.entries[accountID]
	total := len(list)
	if offset >= total {
		return []Entry{}, total
	}

	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]Entry, end-offset)
	copy(out, list[offset:end])
	return out, total
}
