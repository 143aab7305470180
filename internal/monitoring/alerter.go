package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ownerfi/dealflow/internal/config"
	"github.com/ownerfi/dealflow/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailure     AlertType = "run_failure"
	AlertIndexOutage    AlertType = "index_outage"
	AlertRelayOutage    AlertType = "relay_outage"
	AlertValidationRate AlertType = "validation_failure_rate"
)

// minDetailedForRate is the minimum number of detailed listings before
// the validation failure rate is considered meaningful.
const minDetailedForRate = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a finished run against configured thresholds and
// sends alerts via webhook when something needs operator attention.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks a run summary and returns any alerts. Skipped runs
// never alert.
func (a *Alerter) Evaluate(sum *model.RunSummary) []Alert {
	if sum.Skipped {
		return nil
	}

	var alerts []Alert
	now := time.Now().UTC()
	m := sum.Metrics

	if sum.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "critical",
			RunID:    sum.RunID,
			Message:  fmt.Sprintf("Run %s failed: %s", sum.RunID, sum.Error),
			Details: map[string]any{
				"found":     m.Found,
				"persisted": m.Persisted,
			},
			Timestamp: now,
		})
	}

	if m.IndexFailed > 0 && m.Indexed == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertIndexOutage,
			Severity: "high",
			RunID:    sum.RunID,
			Message: fmt.Sprintf(
				"Search index rejected all %d documents in run %s",
				m.IndexFailed, sum.RunID,
			),
			Details:   map[string]any{"index_failed": m.IndexFailed},
			Timestamp: now,
		})
	}

	if m.RelayFailed > 0 && m.Relayed == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRelayOutage,
			Severity: "high",
			RunID:    sum.RunID,
			Message: fmt.Sprintf(
				"Relay delivery failed for all %d payloads in run %s",
				m.RelayFailed, sum.RunID,
			),
			Details:   map[string]any{"relay_failed": m.RelayFailed},
			Timestamp: now,
		})
	}

	if m.Detailed >= minDetailedForRate && a.cfg.FailureRateThreshold > 0 {
		failed := m.TransformFailed + m.ValidationFailed
		rate := float64(failed) / float64(m.Detailed)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertValidationRate,
				Severity: "high",
				RunID:    sum.RunID,
				Message: fmt.Sprintf(
					"Validation failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d detailed)",
					rate*100, a.cfg.FailureRateThreshold*100, failed, m.Detailed,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       failed,
					"detailed":     m.Detailed,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
