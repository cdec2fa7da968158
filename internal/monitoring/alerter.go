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

	"github.com/sightline-ai/visibility-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailureRate AlertType = "sync_failure_rate"
	AlertSyncBacklog     AlertType = "sync_backlog"
	AlertDeadLetters     AlertType = "dead_letters"
	AlertJobErrors       AlertType = "job_errors"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
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

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Sync failure rate. At least 5 settled operations before alerting, so a
	// single early failure does not page anyone.
	settled := snap.SyncComplete + snap.SyncFailed
	if settled >= 5 && a.cfg.FailureRateThreshold > 0 && snap.SyncFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sync failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d settled)",
				snap.SyncFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.SyncFailed, settled,
			),
			Details: map[string]any{
				"failure_rate": snap.SyncFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.SyncFailed,
				"settled":      settled,
			},
			Timestamp: now,
		})
	}

	// Queue backlog.
	if a.cfg.BacklogThreshold > 0 && snap.SyncPending > a.cfg.BacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d sync operation(s) pending exceeds backlog threshold %d",
				snap.SyncPending, a.cfg.BacklogThreshold,
			),
			Details: map[string]any{
				"pending":   snap.SyncPending,
				"threshold": a.cfg.BacklogThreshold,
			},
			Timestamp: now,
		})
	}

	// Dead letters.
	if snap.DLQDepth > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDeadLetters,
			Severity: "medium",
			Message:  fmt.Sprintf("%d entry(ies) in the sync dead letter queue", snap.DLQDepth),
			Details: map[string]any{
				"dlq_depth": snap.DLQDepth,
			},
			Timestamp: now,
		})
	}

	// Job error counts.
	if a.cfg.JobErrorThreshold > 0 {
		for id, errs := range snap.JobErrors {
			if errs < a.cfg.JobErrorThreshold {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertJobErrors,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Job %s has failed %d time(s), threshold %d",
					id, errs, a.cfg.JobErrorThreshold,
				),
				Details: map[string]any{
					"job_id":    id,
					"errors":    errs,
					"threshold": a.cfg.JobErrorThreshold,
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

// sendWebhook posts a single alert to the webhook URL.
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
