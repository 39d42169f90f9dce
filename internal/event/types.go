// Package event defines the CommentEvent type and the Source interface.
// Both ingestion strategies (push webhooks and comment polling) emit the
// same canonical event into one channel feeding one pipeline.
package event

import (
	"context"
	"time"
)

// Source identifiers for the ingestion strategies.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
)

// CommentEvent is the canonical form of one observed comment. It is
// transient: constructed per incoming event or poll tick, never persisted.
type CommentEvent struct {
	CommentID       string    `json:"comment_id"`
	AccountID       string    `json:"account_id"` // owner of the post
	PostID          string    `json:"post_id"`
	CommenterID     string    `json:"commenter_id"`
	CommenterHandle string    `json:"commenter_handle,omitempty"`
	Text            string    `json:"text"`
	Source          string    `json:"source"`
	ObservedAt      time.Time `json:"observed_at"`
}

// Source is implemented by anything that can emit comment events.
// The agent starts each source once and consumes a single shared channel.
type Source interface {
	// Name returns the source identifier (e.g. "webhook").
	Name() string

	// Subscribe starts delivering events to out until ctx is cancelled.
	// Subscribe must be non-blocking; it starts goroutines internally.
	Subscribe(ctx context.Context, out chan<- CommentEvent) error
}
