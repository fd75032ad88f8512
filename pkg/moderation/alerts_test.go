package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSinkDeliversAlert(t *testing.T) {
	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	err := sink.Send(context.Background(), Alert{
		Timestamp: time.Now(),
		Severity:  SeverityCritical,
		RiskScore: 95,
		Backend:   "moderator-model",
	})

	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, received.Severity)
	assert.Equal(t, float64(95), received.RiskScore)
}

func TestWebhookSinkReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	assert.Error(t, sink.Send(context.Background(), Alert{}))
}

func TestWebhookSinkNilSafe(t *testing.T) {
	assert.Nil(t, NewWebhookSink(""))

	var sink *WebhookSink
	assert.NoError(t, sink.Send(context.Background(), Alert{}))
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	sink := Fanout(a, b)

	require.NoError(t, sink.Send(context.Background(), Alert{Severity: SeverityWarning}))
	assert.Len(t, a.alerts, 1)
	assert.Len(t, b.alerts, 1)
}
