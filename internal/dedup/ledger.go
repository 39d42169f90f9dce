// Package dedup tracks which comments have already triggered a dispatch.
//
// The ledger is the idempotence guard for the pipeline: the webhook receiver
// and the poll loop can observe the same comment, sometimes in the same
// instant, and exactly one of them may dispatch. Reserve is the atomic
// insert-if-absent that decides the winner; a reservation is terminal
// regardless of whether the send later succeeds or fails.
package dedup

import "sync"

type key struct {
	accountID string
	postID    string
	commentID string
}

// Ledger is a concurrent set of already-handled comments.
type Ledger struct {
	mu   sync.RWMutex
	seen map[key]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[key]struct{})}
}

// Seen reports whether the comment has already been handled. Cheap read used
// to skip matching entirely for known comments.
func (l *Ledger) Seen(accountID, postID, commentID string) bool {
	k := key{accountID: accountID, postID: postID, commentID: commentID}
	l.mu.RLock()
	_, ok := l.seen[k]
	l.mu.RUnlock()
	return ok
}

// Reserve atomically marks the comment as handled. Returns true if this
// caller won the reservation, false if the comment was already present.
func (l *Ledger) Reserve(accountID, postID, commentID string) bool {
	k := key{accountID: accountID, postID: postID, commentID: commentID}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[k]; ok {
		return false
	}
	l.seen[k] = struct{}{}
	return true
}

// Len returns the number of handled comments.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}
