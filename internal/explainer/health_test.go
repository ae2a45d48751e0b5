package explainer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/codematch/internal/telemetry"
)

func TestCreateHealthReport(t *testing.T) {
	e := newTestExplainer(nil, &MockLLMProvider{name: "primary"})

	e.metrics.IncrementCounter(telemetry.MetricAPICallsSuccess, 80)
	e.metrics.IncrementCounter(telemetry.MetricAPICallsFailure, 20)
	e.metrics.IncrementCounter(telemetry.MetricCacheHits, 50)
	e.metrics.IncrementCounter(telemetry.MetricCacheMisses, 100)
	e.metrics.SetGauge(telemetry.MetricCacheSize, 75)
	e.metrics.RecordTimer(telemetry.ResponseTimeMetric("primary"), 500*time.Millisecond)

	report, err := CreateHealthReport(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, int64(100), report.TotalRequests)
	assert.Equal(t, 80.0, report.SuccessRate)
	assert.Equal(t, int64(50), report.CacheStats["hits"])
	assert.Equal(t, int64(100), report.CacheStats["misses"])
	assert.Equal(t, int64(75), report.CacheStats["size"])
	assert.Equal(t, 500.0, report.ResponseTimes["primary"])
	assert.Equal(t, string(StatusHealthy), report.Components["primary"])
	assert.Equal(t, 1.0, e.metrics.GetGauge(telemetry.ProviderHealthMetric("primary")))

	jsonReport, err := CreateHealthReportJSON(context.Background(), e)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(jsonReport), &parsed))
	assert.Equal(t, "healthy", parsed["status"])

	require.NoError(t, ResetMetrics(e))
	assert.Equal(t, int64(0), e.metrics.GetCounter(telemetry.MetricAPICallsSuccess))
}

func TestCreateHealthReportDegraded(t *testing.T) {
	e := newTestExplainer(nil,
		&MockLLMProvider{name: "primary"},
		&MockLLMProvider{name: "broken", returnError: true},
	)

	report, err := CreateHealthReport(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, map[string]bool{"primary": true, "broken": false}, report.Providers)
	assert.Equal(t, string(StatusHealthy), report.Components["primary"])
	assert.Equal(t, string(StatusUnhealthy), report.Components["fallbacks"])
}

func TestCreateHealthReportUnhealthy(t *testing.T) {
	e := newTestExplainer(nil, &MockLLMProvider{returnError: true})

	report, err := CreateHealthReport(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestCreateHealthReportNil(t *testing.T) {
	_, err := CreateHealthReport(context.Background(), nil)
	assert.Error(t, err)
	assert.Error(t, ResetMetrics(nil))
}
