package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Alert is emitted for flagged or critical content.
type Alert struct {
	Timestamp  time.Time `json:"ts"`
	Severity   Severity  `json:"severity"`
	Categories []string  `json:"categories"`
	RiskScore  float64   `json:"risk_score"`
	Language   string    `json:"language"`
	Backend    string    `json:"backend"`
	Reasoning  string    `json:"reasoning"`
}

// AlertSink receives alerts. Sinks are fail-open: delivery errors are the
// sink's to log, never the serving path's to propagate.
type AlertSink interface {
	Send(ctx context.Context, alert Alert) error
}

// LogSink is the default sink: structured stderr logging.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates the default alert sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "moderation-alerts")}
}

// Send logs the alert.
func (s *LogSink) Send(_ context.Context, alert Alert) error {
	s.logger.Warn("Content flagged",
		"severity", alert.Severity,
		"categories", alert.Categories,
		"risk_score", alert.RiskScore,
		"language", alert.Language,
		"backend", alert.Backend)
	return nil
}

// WebhookSink posts alerts as JSON to a configured URL.
// Nil-safe: all methods are no-ops when the sink is nil.
type WebhookSink struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewWebhookSink creates a webhook sink. Returns nil if url is empty.
func NewWebhookSink(url string) *WebhookSink {
	if url == "" {
		return nil
	}
	return &WebhookSink{
		url:    url,
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default().With("component", "moderation-alerts"),
	}
}

// Send posts the alert. Fail-open: errors are logged, never returned to the
// serving path.
func (s *WebhookSink) Send(ctx context.Context, alert Alert) error {
	if s == nil {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Error("Failed to deliver alert webhook", "error", err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
		s.logger.Error("Failed to deliver alert webhook", "error", err)
		return err
	}
	return nil
}

// Fanout delivers every alert to all of the given sinks.
func Fanout(sinks ...AlertSink) AlertSink {
	return &fanoutSink{sinks: sinks}
}

// fanoutSink delivers to every configured sink.
type fanoutSink struct {
	sinks []AlertSink
}

func (f *fanoutSink) Send(ctx context.Context, alert Alert) error {
	for _, sink := range f.sinks {
		_ = sink.Send(ctx, alert)
	}
	return nil
}
