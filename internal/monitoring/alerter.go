package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/config"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed       AlertType = "run_failed"
	AlertLowRecordCount  AlertType = "low_record_count"
	AlertRunFailureRate  AlertType = "run_failure_rate"
	AlertAdapterCircuits AlertType = "adapter_circuit_open"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// minFinishedRuns is the sample size below which fail rates are ignored.
const minFinishedRuns = 5

// Alerter turns run results and metric snapshots into alerts and delivers
// them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// EvaluateRun returns the alerts a single finished run triggers.
func (a *Alerter) EvaluateRun(res *model.IngestionResult) []Alert {
	var alerts []Alert
	now := a.now().UTC()
	fetched := res.Stages.Adapters.RecordsFetched

	if !res.Success {
		var msgs []string
		for _, e := range res.Errors {
			if e.Severity != model.ErrorWarning {
				msgs = append(msgs, e.Stage+": "+e.Message)
			}
		}
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message: fmt.Sprintf("Ingestion %s for %dW%d failed with %d errors",
				res.ExecutionID, res.Season, res.Week, len(msgs)),
			Details: map[string]any{
				"execution_id":    res.ExecutionID,
				"errors":          msgs,
				"adapters_failed": res.Stages.Adapters.AdaptersFailed,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinRecords > 0 && fetched < a.cfg.MinRecords && res.Stages.Adapters.Status != model.StatusSkipped {
		alerts = append(alerts, Alert{
			Type:     AlertLowRecordCount,
			Severity: "medium",
			Message: fmt.Sprintf("Ingestion %s fetched %d records, below minimum %d",
				res.ExecutionID, fetched, a.cfg.MinRecords),
			Details: map[string]any{
				"execution_id":    res.ExecutionID,
				"records_fetched": fetched,
				"min_records":     a.cfg.MinRecords,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	finished := snap.RunsSucceeded + snap.RunsFailed
	if finished >= minFinishedRuns && a.cfg.FailureRateThreshold > 0 && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Ingestion failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if len(snap.OpenBreakers) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertAdapterCircuits,
			Severity:  "medium",
			Message:   "Adapter circuit open: " + strings.Join(snap.OpenBreakers, ", "),
			Details:   map[string]any{"adapters": snap.OpenBreakers},
			Timestamp: now,
		})
	}
	return alerts
}

// Notify evaluates a finished run and sends its alerts. It errors only when
// an alert was due and none could be delivered.
func (a *Alerter) Notify(ctx context.Context, res *model.IngestionResult) error {
	alerts := a.EvaluateRun(res)
	if len(alerts) == 0 || a.cfg.WebhookURL == "" {
		return nil
	}
	if a.SendAlerts(ctx, alerts) == 0 {
		return eris.Errorf("monitoring: no alerts delivered for %s", res.ExecutionID)
	}
	return nil
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
