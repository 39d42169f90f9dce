// Package mgmt provides the management API for the reply agent: rule
// administration, reply-log inspection and runtime introspection.
package mgmt

import (
	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/replylog"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

// --- Request DTOs ---

// CreateRuleRequest is the payload for POST /api/v1/rules.
type CreateRuleRequest struct {
	PostID  string `json:"post_id"`
	Keyword string `json:"keyword"`
	Reply   string `json:"reply"`
}

// --- Response DTOs ---

// RuleResponse wraps one rule.
type RuleResponse struct {
	Rule rules.Rule `json:"rule"`
}

// RuleListResponse is the response for GET /api/v1/rules?post_id=...
type RuleListResponse struct {
	Rules []rules.Rule `json:"rules"`
	Total int          `json:"total"`
}

// RuleMapResponse is the response for GET /api/v1/rules without a post
// filter: rules grouped by post, each group in insertion order.
type RuleMapResponse struct {
	Rules map[string][]rules.Rule `json:"rules"`
	Total int                     `json:"total"`
}

// LogListResponse is the response for GET /api/v1/logs.
type LogListResponse struct {
	Entries []replylog.Entry `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// PostListResponse is the response for GET /api/v1/posts.
type PostListResponse struct {
	Posts []graph.Media `json:"posts"`
	Total int           `json:"total"`
}

// ConfigResponse is the response for GET /api/v1/config.
type ConfigResponse struct {
	Environment    string `json:"environment"`
	LogLevel       string `json:"log_level"`
	HTTPPort       int    `json:"http_port"`
	MgmtListenAddr string `json:"mgmt_listen_addr"`
	AuthMode       string `json:"auth_mode"`
	AccountID      string `json:"account_id"`
	WebhookEnabled bool   `json:"webhook_enabled"`
	PollEnabled    bool   `json:"poll_enabled"`
	PollInterval   string `json:"poll_interval"`
	RateLimitRPS   int    `json:"rate_limit_rps"`
	RateLimitBurst int    `json:"rate_limit_burst"`
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	ActiveRules  int    `json:"active_rules"`
	SeenComments int    `json:"seen_comments"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
