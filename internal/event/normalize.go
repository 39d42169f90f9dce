package event

import (
	"time"

	"github.com/p-blackswan/reply-agent/internal/graph"
)

// WebhookBatch is the body of a webhook POST: a batch of per-account
// entries, each carrying field changes.
type WebhookBatch struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups the changes delivered for one account.
type WebhookEntry struct {
	ID      string          `json:"id"` // account that owns the post
	Time    int64           `json:"time"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one field change. Only comment changes carry the fields
// we need; other fields (mentions, story insights) normalize to nil.
type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the provider's comment payload. Field presence varies
// between API versions, hence the alias fields.
type ChangeValue struct {
	CommentID string      `json:"comment_id"`
	Text      string      `json:"text"`
	MediaID   string      `json:"media_id"`
	PostID    string      `json:"post_id"` // older payloads use post_id
	From      *graph.User `json:"from"`
}

// FromChange normalizes one webhook change into a CommentEvent. Returns nil
// for anything that is not a usable comment: partial payloads are expected
// in practice and must not crash the pipeline.
func FromChange(accountID string, ch WebhookChange, observed time.Time) *CommentEvent {
	v := ch.Value
	if v.CommentID == "" || v.Text == "" {
		return nil
	}

	postID := v.MediaID
	if postID == "" {
		postID = v.PostID
	}
	if postID == "" {
		return nil
	}

	ev := &CommentEvent{
		CommentID:  v.CommentID,
		AccountID:  accountID,
		PostID:     postID,
		Text:       v.Text,
		Source:     SourceWebhook,
		ObservedAt: observed,
	}
	if v.From != nil {
		ev.CommenterID = v.From.ID
		ev.CommenterHandle = v.From.Username
	}
	return ev
}

// FromComment normalizes a polled comment record into a CommentEvent.
// Returns nil when the record lacks a comment ID or text.
func FromComment(accountID, postID string, c graph.Comment, observed time.Time) *CommentEvent {
	if c.ID == "" || c.Text == "" {
		return nil
	}

	ev := &CommentEvent{
		CommentID:  c.ID,
		AccountID:  accountID,
		PostID:     postID,
		Text:       c.Text,
		Source:     SourcePoll,
		ObservedAt: observed,
	}
	if c.From != nil {
		ev.CommenterID = c.From.ID
		ev.CommenterHandle = c.From.Username
	} else if c.Username != "" {
		ev.CommenterHandle = c.Username
	}
	return ev
}
