package event

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

// CommentLister is the slice of the Graph client the poll loop needs.
type CommentLister interface {
	ListMedia(ctx context.Context) ([]graph.Media, error)
	ListComments(ctx context.Context, mediaID string) ([]graph.Comment, error)
}

// RuleIndex answers whether a post has any active rules. Posts without
// rules are skipped to keep the per-cycle API budget small.
type RuleIndex interface {
	List(accountID, postID string) []rules.Rule
}

// PollConfig configures the polling source.
type PollConfig struct {
	// AccountID is the connected account whose posts are scanned.
	AccountID string

	// Interval between poll cycles. Default: 20s.
	Interval time.Duration
}

// PollSource periodically lists the account's posts and their comments,
// emitting each comment as an event. Downstream deduplication makes the
// repeated observation of old comments harmless.
type PollSource struct {
	cfg     PollConfig
	lister  CommentLister
	index   RuleIndex
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewPollSource creates the polling source. Call Subscribe to start it.
func NewPollSource(cfg PollConfig, lister CommentLister, index RuleIndex, m *metrics.Metrics, logger zerolog.Logger) *PollSource {
	if cfg.Interval == 0 {
		cfg.Interval = 20 * time.Second
	}
	return &PollSource{
		cfg:     cfg,
		lister:  lister,
		index:   index,
		metrics: m,
		logger:  logger.With().Str("component", "poll").Logger(),
	}
}

// Name implements Source.
func (p *PollSource) Name() string { return SourcePoll }

// Subscribe implements Source. It starts the poll loop and returns; the
// loop stops when ctx is cancelled.
func (p *PollSource) Subscribe(ctx context.Context, out chan<- CommentEvent) error {
	go p.run(ctx, out)
	return nil
}

func (p *PollSource) run(ctx context.Context, out chan<- CommentEvent) {
	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("poll loop starting")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poll loop stopped")
			return
		case <-ticker.C:
			p.cycle(ctx, out)
		}
	}
}

// cycle runs one poll pass. A failure on one post never aborts the rest of
// the cycle; a failed media listing skips the cycle entirely.
func (p *PollSource) cycle(ctx context.Context, out chan<- CommentEvent) {
	p.metrics.RecordPollCycle()

	media, err := p.lister.ListMedia(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("listing media failed, skipping cycle")
		return
	}

	observed := time.Now().UTC()
	for _, m := range media {
		if len(p.index.List(p.cfg.AccountID, m.ID)) == 0 {
			continue
		}

		comments, err := p.lister.ListComments(ctx, m.ID)
		if err != nil {
			p.logger.Warn().Err(err).Str("post_id", m.ID).Msg("listing comments failed, skipping post")
			continue
		}

		for _, c := range comments {
			ev := FromComment(p.cfg.AccountID, m.ID, c, observed)
			if ev == nil {
				continue
			}
			select {
			case out <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
