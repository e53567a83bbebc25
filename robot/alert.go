package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// AlertLevel orders notification severity. Alerts below a profile's
// configured level are suppressed.
type AlertLevel int

const (
	LevelInfo     AlertLevel = 1
	LevelWarning  AlertLevel = 2
	LevelCritical AlertLevel = 3
)

func (l AlertLevel) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// AlertSink receives operational notifications. Implementations must never
// block the caller for long or surface failures as errors; alerting is a
// side channel, not part of the pipeline.
type AlertSink interface {
	Notify(level AlertLevel, title string, body string)
}

// NopAlerts discards every notification.
type NopAlerts struct{}

func (NopAlerts) Notify(AlertLevel, string, string) {}

// TeamsWebhook posts alerts to a Microsoft Teams workflow webhook. Delivery
// failures are logged and swallowed.
type TeamsWebhook struct {
	url      string
	minLevel AlertLevel
	client   *http.Client
	log      zerolog.Logger
}

// NewTeamsWebhook builds an AlertSink from a profile's alerting settings.
// A disabled or misconfigured setup degrades to NopAlerts.
func NewTeamsWebhook(cfg Alerting, log zerolog.Logger) AlertSink {
	if !cfg.Enabled {
		return NopAlerts{}
	}
	if cfg.WebhookURL == "" {
		log.Warn().Msg("alerting enabled without a webhook URL, alerts disabled")
		return NopAlerts{}
	}
	min := AlertLevel(cfg.Level)
	if min < LevelInfo || min > LevelCritical {
		min = LevelCritical
	}
	return &TeamsWebhook{
		url:      cfg.WebhookURL,
		minLevel: min,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (t *TeamsWebhook) Notify(level AlertLevel, title string, body string) {
	if level < t.minLevel {
		return
	}
	var prefix string
	switch level {
	case LevelCritical:
		prefix = "🚨"
	case LevelWarning:
		prefix = "🟠"
	default:
		prefix = "✅"
	}
	text := fmt.Sprintf("%s %s: %s\n\n%s", prefix, level, title, body)
	payload, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		t.log.Error().Err(err).Msg("encode alert payload")
		return
	}
	resp, err := t.client.Post(t.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.log.Error().Err(err).Msg("post alert webhook")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.log.Error().Int("status", resp.StatusCode).Msg("alert webhook rejected")
	}
}
