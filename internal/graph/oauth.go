package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// OAuth scopes requested during the connect flow.
var oauthScopes = []string{
	"pages_show_list",
	"instagram_basic",
	"instagram_manage_comments",
	"instagram_manage_messages",
	"pages_messaging",
	"pages_read_engagement",
}

// OAuthConfig configures the operator connect flow.
type OAuthConfig struct {
	AppID       string
	AppSecret   string
	RedirectURI string
	BaseURL     string // default "https://graph.facebook.com"
	Version     string // default "v21.0"
}

// Credentials is the result of a completed connect flow: the page-scoped
// token and the connected account it grants access to.
type Credentials struct {
	AccountID       string // IG business account ID
	PageID          string
	PageAccessToken string
	LongLivedToken  string
}

// OAuth implements the authorization-code connect flow against the provider.
type OAuth struct {
	cfg        OAuthConfig
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewOAuth creates the connect-flow helper.
func NewOAuth(cfg OAuthConfig, logger zerolog.Logger) *OAuth {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Version == "" {
		cfg.Version = "v21.0"
	}
	return &OAuth{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "oauth").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (o *OAuth) SetHTTPClient(hc HTTPClient) {
	o.httpClient = hc
}

// AuthorizeURL builds the provider login dialog URL the operator is
// redirected to.
func (o *OAuth) AuthorizeURL(state string) string {
	q := url.Values{
		"client_id":     {o.cfg.AppID},
		"redirect_uri":  {o.cfg.RedirectURI},
		"state":         {state},
		"scope":         {strings.Join(oauthScopes, ",")},
		"response_type": {"code"},
	}
	return fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth?%s", o.cfg.Version, q.Encode())
}

// Connect runs the full flow for a returned authorization code: token
// exchange, long-lived token upgrade, page discovery and connected-account
// lookup. The first page with a linked account wins (single-operator
// deployment).
func (o *OAuth) Connect(ctx context.Context, code string) (Credentials, error) {
	shortToken, err := o.exchangeCode(ctx, code)
	if err != nil {
		return Credentials{}, fmt.Errorf("exchanging code: %w", err)
	}

	longToken, err := o.exchangeLongLived(ctx, shortToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("upgrading token: %w", err)
	}

	pages, err := o.listPages(ctx, longToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("listing pages: %w", err)
	}
	if len(pages) == 0 {
		return Credentials{}, fmt.Errorf("no pages on this account")
	}

	for _, page := range pages {
		accountID, err := o.connectedAccount(ctx, page.ID, page.AccessToken)
		if err != nil {
			o.logger.Warn().Err(err).Str("page_id", page.ID).Msg("page lookup failed, trying next")
			continue
		}
		if accountID == "" {
			continue
		}
		return Credentials{
			AccountID:       accountID,
			PageID:          page.ID,
			PageAccessToken: page.AccessToken,
			LongLivedToken:  longToken,
		}, nil
	}

	return Credentials{}, fmt.Errorf("no page with a linked business account")
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type pageInfo struct {
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

func (o *OAuth) exchangeCode(ctx context.Context, code string) (string, error) {
	q := url.Values{
		"client_id":     {o.cfg.AppID},
		"client_secret": {o.cfg.AppSecret},
		"redirect_uri":  {o.cfg.RedirectURI},
		"code":          {code},
	}
	var resp accessTokenResponse
	if err := o.get(ctx, "/oauth/access_token", q, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

func (o *OAuth) exchangeLongLived(ctx context.Context, shortToken string) (string, error) {
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {o.cfg.AppID},
		"client_secret":     {o.cfg.AppSecret},
		"fb_exchange_token": {shortToken},
	}
	var resp accessTokenResponse
	if err := o.get(ctx, "/oauth/access_token", q, &resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

func (o *OAuth) listPages(ctx context.Context, token string) ([]page, error) {
	q := url.Values{"access_token": {token}}
	var env listEnvelope[page]
	if err := o.get(ctx, "/me/accounts", q, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (o *OAuth) connectedAccount(ctx context.Context, pageID, pageToken string) (string, error) {
	q := url.Values{
		"fields":       {"instagram_business_account"},
		"access_token": {pageToken},
	}
	var info pageInfo
	if err := o.get(ctx, "/"+pageID, q, &info); err != nil {
		return "", err
	}
	if info.InstagramBusinessAccount == nil {
		return "", nil
	}
	return info.InstagramBusinessAccount.ID, nil
}

func (o *OAuth) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := fmt.Sprintf("%s/%s%s?%s", strings.TrimSuffix(o.cfg.BaseURL, "/"), o.cfg.Version, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if err := decodeJSON(resp, out); err != nil {
		return err
	}
	return nil
}
