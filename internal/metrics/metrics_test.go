package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.EventsTotal)
	assert.NotNil(t, m.DispatchesTotal)
	assert.NotNil(t, m.DispatchDuration)
	assert.NotNil(t, m.ErrorsTotal)
	assert.NotNil(t, m.RulesActive)
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := New()
	m.RecordEvent("webhook", "matched")
	m.RecordEvent("webhook", "matched")
	m.RecordEvent("poll", "no_match")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `agent_comment_events_total{outcome="matched",source="webhook"} 2`)
	assert.Contains(t, body, `agent_comment_events_total{outcome="no_match",source="poll"} 1`)
}

func TestMetrics_RecordDispatch(t *testing.T) {
	m := New()
	m.RecordDispatch("sent")
	m.RecordDispatch("failed")
	m.RecordDispatch("sent")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `agent_dispatches_total{status="sent"} 2`)
	assert.Contains(t, body, `agent_dispatches_total{status="failed"} 1`)
}

func TestMetrics_RecordError(t *testing.T) {
	m := New()
	m.RecordError("graph", "transport_failure")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `agent_errors_total{module="graph",type="transport_failure"} 1`)
}

func TestMetrics_ObserveDispatchDuration(t *testing.T) {
	m := New()
	m.ObserveDispatchDuration(0.25)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "agent_dispatch_duration_seconds")
}

func TestMetrics_SetRulesActive(t *testing.T) {
	m := New()
	m.SetRulesActive(4)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "agent_rules_active 4")
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	handler := m.Handler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	return strings.TrimSpace(string(body))
}
