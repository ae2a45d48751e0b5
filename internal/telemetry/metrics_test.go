package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(MetricMatchRuns, 1)
	m.IncrementCounter(MetricMatchRuns, 2)
	m.SetGauge(MetricMatchBestScore, 0.75)

	assert.Equal(t, int64(3), m.GetCounter(MetricMatchRuns))
	assert.Equal(t, 0.75, m.GetGauge(MetricMatchBestScore))
	assert.Zero(t, m.GetCounter("unknown"))
}

func TestTimers(t *testing.T) {
	m := NewMetricsCollector()
	for i := 1; i <= 20; i++ {
		m.RecordTimer(MetricMatchDuration, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 20, m.GetTimerCount(MetricMatchDuration))
	assert.Equal(t, 10500*time.Microsecond, m.GetTimerAverage(MetricMatchDuration))
	assert.Equal(t, 20*time.Millisecond, m.GetTimerP95(MetricMatchDuration))
	assert.Zero(t, m.GetTimerAverage("missing"))
	assert.Zero(t, m.GetTimerP95("missing"))
}

func TestTimerSamplesAreBounded(t *testing.T) {
	m := NewMetricsCollector()
	for i := 0; i < maxTimerSamples+25; i++ {
		m.RecordTimer(MetricExplainDuration, time.Duration(i))
	}
	assert.Equal(t, maxTimerSamples, m.GetTimerCount(MetricExplainDuration))
}

func TestReportAndReset(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(APICallsMetric("google"), 1)
	m.IncrementCounter(MetricMatchRuns, 1)
	m.RecordTimer(ResponseTimeMetric("google"), time.Second)
	m.RecordTimestamp(MetricMatchLastRun)

	report := m.GetReport()
	assert.Contains(t, report, "explainer.api_calls.google: 1")
	assert.Contains(t, report, "explainer.response_time.google: avg=1s")
	assert.Less(t, strings.Index(report, "explainer.api_calls.google"), strings.Index(report, "matcher.runs"))
	assert.Greater(t, m.GetTimeSince(MetricMatchLastRun), time.Duration(-1))

	m.Reset()
	assert.Zero(t, m.GetCounter(MetricMatchRuns))
	assert.Zero(t, m.GetTimeSince(MetricMatchLastRun))
}
