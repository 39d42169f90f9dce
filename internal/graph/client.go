// Package graph wraps the provider's Graph API: media and comment listing,
// direct-message sending, and the OAuth connect flow.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	perrors "github.com/p-blackswan/reply-agent/internal/errors"
	"github.com/p-blackswan/reply-agent/internal/retry"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the Graph API client.
type ClientConfig struct {
	// BaseURL, e.g. "https://graph.facebook.com".
	BaseURL string

	// Version is the API version segment, e.g. "v21.0".
	Version string

	// AccountID is the connected account (IG business account ID).
	AccountID string

	// AccessToken is the page access token used for all calls.
	AccessToken string

	// Timeout bounds each HTTP call. Default: 10s.
	Timeout time.Duration

	// RateLimit is the client-side requests-per-second budget. Default: 5.
	RateLimit float64
}

// Client wraps the Graph API for one connected account.
type Client struct {
	cfg        ClientConfig
	httpClient HTTPClient
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates a Graph API client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Version == "" {
		cfg.Version = "v21.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1),
		logger:     logger.With().Str("component", "graph").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// AccountID returns the connected account ID.
func (c *Client) AccountID() string {
	return c.cfg.AccountID
}

// ListMedia lists the connected account's recent posts. Transient provider
// errors are retried with backoff.
func (c *Client) ListMedia(ctx context.Context) ([]Media, error) {
	var env listEnvelope[Media]
	path := fmt.Sprintf("/%s/%s/media", c.cfg.Version, c.cfg.AccountID)
	q := url.Values{"fields": {"id,caption,media_type,permalink,timestamp"}}

	err := retry.Do(ctx, listRetryConfig(), func(ctx context.Context) error {
		return c.get(ctx, path, q, &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ListComments lists the comments on one media object. Transient provider
// errors are retried with backoff.
func (c *Client) ListComments(ctx context.Context, mediaID string) ([]Comment, error) {
	var env listEnvelope[Comment]
	path := fmt.Sprintf("/%s/%s/comments", c.cfg.Version, mediaID)
	q := url.Values{"fields": {"id,text,username,from,timestamp"}}

	err := retry.Do(ctx, listRetryConfig(), func(ctx context.Context) error {
		return c.get(ctx, path, q, &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SendMessage sends a direct message to the commenter. One attempt only;
// the caller records the outcome either way.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (string, error) {
	if c.cfg.AccountID == "" || c.cfg.AccessToken == "" {
		return "", fmt.Errorf("send message: %w: account not connected", perrors.ErrUnavailable)
	}
	if recipientID == "" {
		return "", fmt.Errorf("send message: %w: missing recipient", perrors.ErrInvalidInput)
	}

	body, err := json.Marshal(sendMessageRequest{
		Recipient: recipient{ID: recipientID},
		Message:   message{Text: text},
	})
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}

	path := fmt.Sprintf("/%s/%s/messages", c.cfg.Version, c.cfg.AccountID)
	var resp sendMessageResponse
	if err := c.post(ctx, path, nil, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}

	id := resp.MessageID
	if id == "" {
		id = resp.ID
	}
	return id, nil
}

func listRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      true,
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) post(ctx context.Context, path string, q url.Values, body io.Reader, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, q, body, out)
}

// do executes one authenticated API call.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if q == nil {
		q = url.Values{}
	}
	q.Set("access_token", c.cfg.AccessToken)

	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, perrors.ErrTimeout)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%s %s: %w", method, path, perrors.ErrTimeout)
		}
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// decodeJSON decodes a success response body.
func decodeJSON(resp *http.Response, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeAPIError turns a Graph error body into an APIError.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env apiErrorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return perrors.NewAPIError("graph", resp.StatusCode, env.Error.Message)
	}
	return perrors.NewAPIError("graph", resp.StatusCode, strings.TrimSpace(string(raw)))
}
