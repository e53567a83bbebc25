package robot

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTeamsWebhookPostsMessage(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		got = append(got, payload["message"])
	}))
	defer srv.Close()

	sink := NewTeamsWebhook(Alerting{Enabled: true, WebhookURL: srv.URL, Level: 1}, zerolog.Nop())
	sink.Notify(LevelCritical, "Delivery failed permanently", "record 7")
	sink.Notify(LevelInfo, "File delivered", "a.edi")

	require.Len(t, got, 2)
	require.True(t, strings.HasPrefix(got[0], "🚨 CRITICAL: Delivery failed permanently"))
	require.Contains(t, got[0], "record 7")
	require.True(t, strings.HasPrefix(got[1], "✅ INFO: File delivered"))
}

func TestTeamsWebhookFiltersBelowLevel(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	sink := NewTeamsWebhook(Alerting{Enabled: true, WebhookURL: srv.URL, Level: 3}, zerolog.Nop())
	sink.Notify(LevelInfo, "ignored", "")
	sink.Notify(LevelWarning, "ignored", "")
	sink.Notify(LevelCritical, "kept", "")
	require.Equal(t, 1, calls)
}

func TestTeamsWebhookDegradesToNop(t *testing.T) {
	require.IsType(t, NopAlerts{}, NewTeamsWebhook(Alerting{Enabled: false}, zerolog.Nop()))
	require.IsType(t, NopAlerts{}, NewTeamsWebhook(Alerting{Enabled: true, WebhookURL: ""}, zerolog.Nop()))
}

func TestTeamsWebhookSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink := NewTeamsWebhook(Alerting{Enabled: true, WebhookURL: srv.URL, Level: 1}, zerolog.Nop())
	// Neither a rejecting endpoint nor an unreachable one may panic or block.
	sink.Notify(LevelCritical, "x", "y")
	srv.Close()
	sink.Notify(LevelCritical, "x", "y")
}
