package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WebhookConfig configures the webhook receiver.
type WebhookConfig struct {
	// VerifyToken is the shared secret echoed back during the provider's
	// GET verification handshake.
	VerifyToken string

	// MaxBodyBytes limits the request body size. Default: 1 MiB.
	MaxBodyBytes int64
}

// WebhookSource receives provider webhook deliveries. It is an http.Handler
// meant to be mounted on the agent's main mux; Subscribe binds the output
// channel events are delivered on.
type WebhookSource struct {
	cfg    WebhookConfig
	logger zerolog.Logger

	mu  sync.RWMutex
	ctx context.Context
	out chan<- CommentEvent
}

// NewWebhookSource creates the receiver. Mount it on the webhook path and
// call Subscribe before traffic arrives.
func NewWebhookSource(cfg WebhookConfig, logger zerolog.Logger) *WebhookSource {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	return &WebhookSource{
		cfg:    cfg,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// Name implements Source.
func (w *WebhookSource) Name() string { return SourceWebhook }

// Subscribe implements Source. It binds the output channel; the HTTP
// handler does the actual delivery.
func (w *WebhookSource) Subscribe(ctx context.Context, out chan<- CommentEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx = ctx
	w.out = out
	return nil
}

// ServeHTTP handles the two provider interactions: the GET verification
// handshake and POST event deliveries.
func (w *WebhookSource) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.handleVerify(rw, r)
	case http.MethodPost:
		w.handleDelivery(rw, r)
	default:
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerify answers the subscription handshake: echo the challenge only
// when the mode is "subscribe" and the token matches.
func (w *WebhookSource) handleVerify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode == "subscribe" && token == w.cfg.VerifyToken {
		w.logger.Info().Msg("webhook verified")
		rw.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(rw, q.Get("hub.challenge"))
		return
	}

	w.logger.Warn().Str("mode", mode).Str("remote", r.RemoteAddr).Msg("webhook verification rejected")
	http.Error(rw, "forbidden", http.StatusForbidden)
}

// handleDelivery acks the batch before processing it. The provider redelivers
// on non-200 responses, so the response never depends on payload contents.
func (w *WebhookSource) handleDelivery(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, w.cfg.MaxBodyBytes))
	if err != nil {
		w.logger.Warn().Err(err).Msg("webhook body read failed")
		body = nil
	}

	rw.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(rw, "EVENT_RECEIVED")

	var batch WebhookBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		w.logger.Debug().Err(err).Msg("webhook payload not parseable, dropping")
		return
	}

	go w.deliver(batch, time.Now().UTC())
}

// deliver fans the batch out to the event channel. Each change is handled
// independently: one malformed change never blocks its siblings.
func (w *WebhookSource) deliver(batch WebhookBatch, observed time.Time) {
	w.mu.RLock()
	ctx, out := w.ctx, w.out
	w.mu.RUnlock()

	if out == nil {
		w.logger.Warn().Msg("webhook delivery before subscribe, dropping batch")
		return
	}

	for _, entry := range batch.Entry {
		for _, ch := range entry.Changes {
			ev := FromChange(entry.ID, ch, observed)
			if ev == nil {
				w.logger.Debug().Str("field", ch.Field).Msg("change skipped")
				continue
			}

			select {
			case out <- *ev:
				w.logger.Debug().
					Str("comment_id", ev.CommentID).
					Str("post_id", ev.PostID).
					Msg("webhook event queued")
			case <-ctx.Done():
				return
			}
		}
	}
}
