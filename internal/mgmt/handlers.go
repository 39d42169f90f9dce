package mgmt

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/reply-agent/internal/dedup"
	perrors "github.com/p-blackswan/reply-agent/internal/errors"
	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/health"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/replylog"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

const defaultLogPageSize = 50

// PostLister lists the connected account's posts for GET /api/v1/posts.
type PostLister interface {
	ListMedia(ctx context.Context) ([]graph.Media, error)
}

// RuntimeState reports agent state that can change after startup. The OAuth
// callback may connect the account long after boot, so handlers must read
// the account ID live rather than freeze it at construction; rules and log
// entries keyed by a stale ID would never match incoming events.
type RuntimeState interface {
	AccountID() string
	PollActive() bool
}

// RuntimeConfig holds the static settings exposed on GET /api/v1/config.
type RuntimeConfig struct {
	Environment    string
	LogLevel       string
	HTTPPort       int
	MgmtListenAddr string
	AuthMode       string
	WebhookEnabled bool
	PollInterval   time.Duration
	RateLimitRPS   int
	RateLimitBurst int
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store   rules.Store
	log     replylog.Log
	ledger  *dedup.Ledger
	posts   PostLister
	checker *health.Checker
	metrics *metrics.Metrics
	state   RuntimeState
	rtCfg   RuntimeConfig
	logger  zerolog.Logger

	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store rules.Store, log replylog.Log, ledger *dedup.Ledger, posts PostLister, checker *health.Checker, m *metrics.Metrics, state RuntimeState, rtCfg RuntimeConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:     store,
		log:       log,
		ledger:    ledger,
		posts:     posts,
		checker:   checker,
		metrics:   m,
		state:     state,
		rtCfg:     rtCfg,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// CreateRule handles POST /api/v1/rules.
func (h *Handlers) CreateRule(c *fiber.Ctx) error {
	accountID := h.state.AccountID()
	if accountID == "" {
		// A rule stored without an account key could never match an event.
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"not_connected", "Service Unavailable",
			"No account connected; connect via /auth/login or set ACCOUNT_ID")
	}

	var req CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	rule, err := h.store.Add(accountID, req.PostID, req.Keyword, req.Reply)
	if err != nil {
		if errors.Is(err, perrors.ErrInvalidInput) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_rule", "Bad Request", err.Error())
		}
		return problemResponse(c, fiber.StatusInternalServerError,
			"store_error", "Internal Server Error", err.Error())
	}

	h.metrics.SetRulesActive(float64(h.store.Count()))

	h.logger.Info().
		Str("rule_id", rule.ID).
		Str("post_id", rule.PostID).
		Str("keyword", rule.Keyword).
		Msg("rule created")

	return c.Status(fiber.StatusCreated).JSON(RuleResponse{Rule: rule})
}

// ListRules handles GET /api/v1/rules. With a post_id filter the rules of
// that post are returned in insertion order; without one, all rules
// grouped by post.
func (h *Handlers) ListRules(c *fiber.Ctx) error {
	postID := c.Query("post_id")
	if postID != "" {
		list := h.store.List(h.state.AccountID(), postID)
		return c.JSON(RuleListResponse{Rules: list, Total: len(list)})
	}

	grouped := h.store.ListAll(h.state.AccountID())
	total := 0
	for _, list := range grouped {
		total += len(list)
	}
	return c.JSON(RuleMapResponse{Rules: grouped, Total: total})
}

// DeleteRule handles DELETE /api/v1/rules/:id.
func (h *Handlers) DeleteRule(c *fiber.Ctx) error {
	ruleID := c.Params("id")
	postID := c.Query("post_id")
	if postID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_post_id", "Bad Request",
			"post_id query parameter is required")
	}

	if !h.store.Remove(h.state.AccountID(), postID, ruleID) {
		return problemResponse(c, fiber.StatusNotFound,
			"rule_not_found", "Not Found",
			"No rule "+ruleID+" on post "+postID)
	}

	h.metrics.SetRulesActive(float64(h.store.Count()))

	h.logger.Info().Str("rule_id", ruleID).Str("post_id", postID).Msg("rule removed")
	return c.SendStatus(fiber.StatusNoContent)
}

// ListLogs handles GET /api/v1/logs.
func (h *Handlers) ListLogs(c *fiber.Ctx) error {
	limit, err := positiveQueryInt(c, "limit", defaultLogPageSize)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_limit", "Bad Request", err.Error())
	}
	offset, err := positiveQueryInt(c, "offset", 0)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_offset", "Bad Request", err.Error())
	}

	entries, total := h.log.List(h.state.AccountID(), limit, offset)
	return c.JSON(LogListResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// ListPosts handles GET /api/v1/posts: a pass-through to the provider so
// operators can pick post IDs when creating rules.
func (h *Handlers) ListPosts(c *fiber.Ctx) error {
	if h.posts == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"not_connected", "Service Unavailable",
			"No account connected")
	}

	media, err := h.posts.ListMedia(c.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("listing posts failed")
		return problemResponse(c, fiber.StatusBadGateway,
			"provider_error", "Bad Gateway", err.Error())
	}
	return c.JSON(PostListResponse{Posts: media, Total: len(media)})
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	return c.JSON(ConfigResponse{
		Environment:    h.rtCfg.Environment,
		LogLevel:       h.rtCfg.LogLevel,
		HTTPPort:       h.rtCfg.HTTPPort,
		MgmtListenAddr: h.rtCfg.MgmtListenAddr,
		AuthMode:       h.rtCfg.AuthMode,
		AccountID:      h.state.AccountID(),
		WebhookEnabled: h.rtCfg.WebhookEnabled,
		PollEnabled:    h.state.PollActive(),
		PollInterval:   h.rtCfg.PollInterval.String(),
		RateLimitRPS:   h.rtCfg.RateLimitRPS,
		RateLimitBurst: h.rtCfg.RateLimitBurst,
	})
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Status:       "running",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		ActiveRules:  h.store.Count(),
		SeenComments: h.ledger.Len(),
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func positiveQueryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" must be a non-negative integer")
	}
	return v, nil
}
