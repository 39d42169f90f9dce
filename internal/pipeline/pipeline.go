package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reply-agent/internal/dedup"
	"github.com/p-blackswan/reply-agent/internal/event"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/replylog"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

// Event outcomes reported to metrics.
const (
	outcomeDuplicate  = "duplicate"
	outcomeNoMatch    = "no_match"
	outcomeDispatched = "dispatched"
	outcomeFailed     = "failed"
)

// Sender delivers one direct message. A single attempt per comment; the
// pipeline records the outcome either way.
type Sender interface {
	SendMessage(ctx context.Context, recipientID, text string) (string, error)
}

// Config configures the pipeline.
type Config struct {
	// SendTimeout bounds one dispatch attempt. Default: 10s.
	SendTimeout time.Duration
}

// Pipeline consumes canonical comment events and runs each through dedup,
// matching and dispatch. It is the only writer of the dedup ledger and the
// reply log, which keeps the at-most-one-reply guarantee in one place.
type Pipeline struct {
	cfg     Config
	store   rules.Store
	ledger  *dedup.Ledger
	log     replylog.Log
	sender  Sender
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config, store rules.Store, ledger *dedup.Ledger, log replylog.Log, sender Sender, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		log:     log,
		sender:  sender,
		metrics: m,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run consumes events until ctx is cancelled or in is closed. It blocks;
// run it in its own goroutine.
func (p *Pipeline) Run(ctx context.Context, in <-chan event.CommentEvent) {
	p.logger.Info().Msg("pipeline started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("pipeline stopped")
			return
		case ev, ok := <-in:
			if !ok {
				p.logger.Info().Msg("event channel closed, pipeline stopped")
				return
			}
			p.Process(ctx, ev)
		}
	}
}

// Process runs one event through the pipeline. Dispatch failures are
// recorded, never propagated: a bad comment must not take down ingestion.
func (p *Pipeline) Process(ctx context.Context, ev event.CommentEvent) {
	log := p.logger.With().
		Str("source", ev.Source).
		Str("post_id", ev.PostID).
		Str("comment_id", ev.CommentID).
		Logger()

	if p.ledger.Seen(ev.AccountID, ev.PostID, ev.CommentID) {
		p.metrics.RecordEvent(ev.Source, outcomeDuplicate)
		return
	}

	rule, ok := Match(ev.Text, p.store.List(ev.AccountID, ev.PostID))
	if !ok {
		// No rule fired: the comment stays untouched so a rule added
		// later can still act on a re-observation.
		p.metrics.RecordEvent(ev.Source, outcomeNoMatch)
		return
	}

	// Reserve is the atomic winner-decider between concurrent observations
	// of the same comment. Exactly one caller proceeds to dispatch.
	if !p.ledger.Reserve(ev.AccountID, ev.PostID, ev.CommentID) {
		p.metrics.RecordEvent(ev.Source, outcomeDuplicate)
		return
	}

	entry := replylog.Entry{
		PostID:          ev.PostID,
		CommentID:       ev.CommentID,
		CommenterID:     ev.CommenterID,
		CommenterHandle: ev.CommenterHandle,
		CommentText:     ev.Text,
		MatchedKeyword:  rule.Keyword,
		ReplyText:       rule.ReplyText,
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	messageID, err := p.sender.SendMessage(sendCtx, ev.CommenterID, rule.ReplyText)
	p.metrics.ObserveDispatchDuration(time.Since(start).Seconds())

	if err != nil {
		entry.Status = replylog.StatusFailed
		entry.ErrorDetail = err.Error()
		p.metrics.RecordEvent(ev.Source, outcomeFailed)
		p.metrics.RecordDispatch(string(replylog.StatusFailed))
		p.metrics.RecordError("dispatch", "send")
		log.Warn().Err(err).Str("keyword", rule.Keyword).Msg("dispatch failed")
	} else {
		entry.Status = replylog.StatusSent
		entry.ProviderMessageID = messageID
		p.metrics.RecordEvent(ev.Source, outcomeDispatched)
		p.metrics.RecordDispatch(string(replylog.StatusSent))
		log.Info().Str("keyword", rule.Keyword).Str("message_id", messageID).Msg("reply dispatched")
	}

	p.log.Append(ev.AccountID, entry)
}
