package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownerfi/dealflow/internal/config"
	"github.com/ownerfi/dealflow/internal/model"
)

func TestAlerter_Evaluate_HealthyRun(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Found:     50,
			Detailed:  40,
			Persisted: 12,
			Indexed:   12,
			Relayed:   12,
		},
	}

	assert.Empty(t, a.Evaluate(sum))
}

func TestAlerter_Evaluate_SkippedRunNeverAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	sum := &model.RunSummary{
		RunID:   "run-1",
		Status:  model.RunStatusSkipped,
		Skipped: true,
	}

	assert.Empty(t, a.Evaluate(sum))
}

func TestAlerter_Evaluate_RunFailure(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusFailed,
		Error:  "provider: all detail batches failed",
	}

	alerts := a.Evaluate(sum)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailure, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "all detail batches failed")
}

func TestAlerter_Evaluate_IndexOutage(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Persisted:   8,
			IndexFailed: 8,
		},
	}

	alerts := a.Evaluate(sum)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertIndexOutage, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "all 8 documents")
}

func TestAlerter_Evaluate_PartialIndexFailureDoesNotAlert(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Indexed:     6,
			IndexFailed: 2,
		},
	}

	assert.Empty(t, a.Evaluate(sum))
}

func TestAlerter_Evaluate_RelayOutage(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sum := &model.RunSummary{
		RunID:  "run-2",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			RelayFailed: 5,
		},
	}

	alerts := a.Evaluate(sum)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRelayOutage, alerts[0].Type)
}

func TestAlerter_Evaluate_ValidationRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Detailed:         20,
			TransformFailed:  4,
			ValidationFailed: 4,
			Indexed:          10,
			Relayed:          10,
		},
	}

	alerts := a.Evaluate(sum)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertValidationRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_ValidationRateMinimumSample(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	// Only 4 detailed listings, below the sample minimum.
	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Detailed:         4,
			ValidationFailed: 3,
			Indexed:          1,
			Relayed:          1,
		},
	}

	assert.Empty(t, a.Evaluate(sum))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	sum := &model.RunSummary{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Metrics: model.RunMetrics{
			Detailed:    10,
			Persisted:   10,
			IndexFailed: 10,
			RelayFailed: 10,
		},
	}

	alerts := a.Evaluate(sum)
	assert.Len(t, alerts, 2)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertIndexOutage])
	assert.True(t, types[AlertRelayOutage])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertIndexOutage, Severity: "high", Message: "test alert 1"},
		{Type: AlertRelayOutage, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailure, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailure, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}
