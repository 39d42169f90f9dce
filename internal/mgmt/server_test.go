package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/reply-agent/internal/dedup"
	"github.com/p-blackswan/reply-agent/internal/event"
	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/pipeline"
	"github.com/p-blackswan/reply-agent/internal/replylog"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

const (
	testAccount = "17841400000000000"
	testAPIKey  = "test-api-key"
)

type fakePostLister struct {
	posts []graph.Media
	err   error
}

func (f *fakePostLister) ListMedia(_ context.Context) ([]graph.Media, error) {
	return f.posts, f.err
}

type recordingSender struct {
	calls []sentDM
}

type sentDM struct {
	recipientID string
	text        string
}

func (s *recordingSender) SendMessage(_ context.Context, recipientID, text string) (string, error) {
	s.calls = append(s.calls, sentDM{recipientID, text})
	return "m-1", nil
}

type fakeState struct {
	accountID  string
	pollActive bool
}

func (s *fakeState) AccountID() string { return s.accountID }
func (s *fakeState) PollActive() bool  { return s.pollActive }

type fixture struct {
	server *Server
	store  *rules.MemoryStore
	log    *replylog.MemoryLog
	ledger *dedup.Ledger
	posts  *fakePostLister
	state  *fakeState
}

func setupServer(t *testing.T, auth AuthConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:  rules.NewMemoryStore(),
		log:    replylog.NewMemoryLog(0),
		ledger: dedup.NewLedger(),
		posts:  &fakePostLister{},
		state:  &fakeState{accountID: testAccount, pollActive: true},
	}

	handlers := NewHandlers(f.store, f.log, f.ledger, f.posts, nil, metrics.New(), f.state, RuntimeConfig{
		Environment:    "test",
		LogLevel:       "debug",
		HTTPPort:       8080,
		MgmtListenAddr: ":8090",
		AuthMode:       auth.Mode,
		WebhookEnabled: true,
		PollInterval:   20 * time.Second,
	}, zerolog.Nop())

	f.server = NewServer(ServerConfig{
		AuthConfig: auth,
	}, handlers, zerolog.Nop())
	return f
}

func doJSON(t *testing.T, f *fixture, method, path string, body interface{}, auth string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}

	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateRule(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	resp := doJSON(t, f, http.MethodPost, "/api/v1/rules", CreateRuleRequest{
		PostID:  "media-1",
		Keyword: "  PriCe ",
		Reply:   "DM me for pricing",
	}, "")

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body RuleResponse
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body.Rule.ID)
	assert.Equal(t, "price", body.Rule.Keyword)
	assert.Equal(t, "media-1", body.Rule.PostID)

	assert.Len(t, f.store.List(testAccount, "media-1"), 1)
}

func TestCreateRule_Invalid(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	resp := doJSON(t, f, http.MethodPost, "/api/v1/rules", CreateRuleRequest{
		PostID: "media-1",
		Reply:  "no keyword",
	}, "")

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "invalid_rule", problem.Type)
}

func TestCreateRule_NotConnected(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	f.state.accountID = ""

	resp := doJSON(t, f, http.MethodPost, "/api/v1/rules", CreateRuleRequest{
		PostID:  "media-1",
		Keyword: "price",
		Reply:   "DM me",
	}, "")

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "not_connected", problem.Type)
	assert.Empty(t, f.store.ListAll(""))
}

// Rules created after the account connects at runtime must land under the
// connected account's ID, so that events from that account match them. The
// handlers may not snapshot the ID at construction time.
func TestCreateRule_UsesRuntimeAccountID(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	// Connect flow completes after the server is already up, with an
	// account the server never saw at construction.
	const connectedAccount = "17841400000000099"
	f.state.accountID = connectedAccount

	resp := doJSON(t, f, http.MethodPost, "/api/v1/rules", CreateRuleRequest{
		PostID:  "media-1",
		Keyword: "price",
		Reply:   "DM me for pricing",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sender := &recordingSender{}
	pipe := pipeline.New(pipeline.Config{}, f.store, f.ledger, f.log, sender, metrics.New(), zerolog.Nop())
	pipe.Process(context.Background(), event.CommentEvent{
		CommentID:   "c-1",
		AccountID:   connectedAccount,
		PostID:      "media-1",
		CommenterID: "u-9",
		Text:        "what is the price?",
		Source:      event.SourceWebhook,
		ObservedAt:  time.Now(),
	})

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "u-9", sender.calls[0].recipientID)
	assert.Equal(t, "DM me for pricing", sender.calls[0].text)

	// The reply log is readable back through the same live account key.
	entries, total := f.log.List(connectedAccount, 10, 0)
	require.Equal(t, 1, total)
	assert.Equal(t, replylog.StatusSent, entries[0].Status)
}

func TestListRules_ByPost(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	_, err := f.store.Add(testAccount, "media-1", "price", "first")
	require.NoError(t, err)
	_, err = f.store.Add(testAccount, "media-1", "ship", "second")
	require.NoError(t, err)
	_, err = f.store.Add(testAccount, "media-2", "sale", "other post")
	require.NoError(t, err)

	resp := doJSON(t, f, http.MethodGet, "/api/v1/rules?post_id=media-1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body RuleListResponse
	decodeBody(t, resp, &body)
	require.Equal(t, 2, body.Total)
	assert.Equal(t, "price", body.Rules[0].Keyword)
	assert.Equal(t, "ship", body.Rules[1].Keyword)
}

func TestListRules_Grouped(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	_, err := f.store.Add(testAccount, "media-1", "price", "r1")
	require.NoError(t, err)
	_, err = f.store.Add(testAccount, "media-2", "sale", "r2")
	require.NoError(t, err)

	resp := doJSON(t, f, http.MethodGet, "/api/v1/rules", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body RuleMapResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Rules, 2)
}

func TestDeleteRule(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	r, err := f.store.Add(testAccount, "media-1", "price", "DM sent")
	require.NoError(t, err)

	resp := doJSON(t, f, http.MethodDelete, "/api/v1/rules/"+r.ID+"?post_id=media-1", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.store.List(testAccount, "media-1"))

	resp = doJSON(t, f, http.MethodDelete, "/api/v1/rules/"+r.ID+"?post_id=media-1", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteRule_MissingPostID(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	resp := doJSON(t, f, http.MethodDelete, "/api/v1/rules/some-id", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListLogs_Pagination(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	for i := 0; i < 5; i++ {
		f.log.Append(testAccount, replylog.Entry{
			PostID:    "media-1",
			CommentID: "c-" + string(rune('a'+i)),
			Status:    replylog.StatusSent,
		})
	}

	resp := doJSON(t, f, http.MethodGet, "/api/v1/logs?limit=2&offset=1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body LogListResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, 5, body.Total)
	assert.Len(t, body.Entries, 2)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 1, body.Offset)
}

func TestListLogs_InvalidLimit(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	resp := doJSON(t, f, http.MethodGet, "/api/v1/logs?limit=nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPosts(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	f.posts.posts = []graph.Media{{ID: "media-1", Caption: "hello"}}

	resp := doJSON(t, f, http.MethodGet, "/api/v1/posts", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PostListResponse
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "media-1", body.Posts[0].ID)
}

func TestListPosts_ProviderError(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	f.posts.err = errors.New("boom")

	resp := doJSON(t, f, http.MethodGet, "/api/v1/posts", nil, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGetConfig(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})

	resp := doJSON(t, f, http.MethodGet, "/api/v1/config", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ConfigResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "test", body.Environment)
	assert.Equal(t, testAccount, body.AccountID)
	assert.True(t, body.PollEnabled)
	assert.Equal(t, "20s", body.PollInterval)
}

func TestGetStatus(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "none"})
	_, err := f.store.Add(testAccount, "media-1", "price", "DM sent")
	require.NoError(t, err)
	f.ledger.Reserve(testAccount, "media-1", "c-1")

	resp := doJSON(t, f, http.MethodGet, "/api/v1/status", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, 1, body.ActiveRules)
	assert.Equal(t, 1, body.SeenComments)
}

func TestProbeEndpoints(t *testing.T) {
	f := setupServer(t, AuthConfig{Mode: "api-key", APIKey: testAPIKey})

	resp := doJSON(t, f, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, f, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
