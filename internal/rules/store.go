// Package rules holds the operator-configured keyword rules.
//
// A rule binds a keyword to a canned reply for one post. Matching is
// case-insensitive, so keywords are normalized to lowercase at creation time.
// Rules are immutable once created; the only mutations are add and remove.
package rules

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/reply-agent/internal/errors"
)

// Rule maps a keyword to a reply for a single post.
type Rule struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	PostID    string    `json:"post_id"`
	Keyword   string    `json:"keyword"`
	ReplyText string    `json:"reply_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the repository of keyword rules.
// Implementations must be safe for concurrent use: the webhook receiver,
// the poll loop and the management API all touch the store at once.
type Store interface {
	// Add creates a rule. The keyword is trimmed and lowercased before
	// storage. Returns ErrInvalidInput if postID, keyword or reply is empty.
	Add(accountID, postID, keyword, reply string) (Rule, error)

	// Remove deletes a rule by ID. Reports whether a rule was actually
	// removed; removing an unknown rule is not an error.
	Remove(accountID, postID, ruleID string) bool

	// List returns the rules for one post in insertion order.
	List(accountID, postID string) []Rule

	// ListAll returns every rule for an account, grouped by post ID.
	// Slices are in insertion order.
	ListAll(accountID string) map[string][]Rule

	// Count returns the total number of rules across all accounts.
	Count() int
}

type storeKey struct {
	accountID string
	postID    string
}

// MemoryStore is a lock-guarded in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[storeKey][]Rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[storeKey][]Rule)}
}

// Add implements Store.
func (s *MemoryStore) Add(accountID, postID, keyword, reply string) (Rule, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	reply = strings.TrimSpace(reply)
	postID = strings.TrimSpace(postID)
	if postID == "" || keyword == "" || reply == "" {
		return Rule{}, perrors.ErrInvalidInput
	}

	rule := Rule{
		ID:        uuid.New().String(),
		AccountID: accountID,
		PostID:    postID,
		Keyword:   keyword,
		ReplyText: reply,
		CreatedAt: time.Now().UTC(),
	}

	key := storeKey{accountID: accountID, postID: postID}
	s.mu.Lock()
	s.rules[key] = append(s.rules[key], rule)
	s.mu.Unlock()

	return rule, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(accountID, postID, ruleID string) bool {
	key := storeKey{accountID: accountID, postID: postID}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.rules[key]
	for i, r := range list {
		if r.ID == ruleID {
			s.rules[key] = append(list[:i:i], list[i+1:]...)
			if len(s.rules[key]) == 0 {
				delete(s.rules, key)
			}
			return true
		}
	}
	return false
}

// List implements Store.
func (s *MemoryStore) List(accountID, postID string) []Rule {
	key := storeKey{accountID: accountID, postID: postID}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.rules[key]
	out := make([]Rule, len(list))
	copy(out, list)
	return out
}

// ListAll implements Store.
func (s *MemoryStore) ListAll(accountID string) map[string][]Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Rule)
	for key, list := range s.rules {
		if key.accountID != accountID {
			continue
		}
		cp := make([]Rule, len(list))
		copy(cp, list)
		out[key.postID] = cp
	}
	return out
}

// Count implements Store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.rules {
		n += len(list)
	}
	return n
}
