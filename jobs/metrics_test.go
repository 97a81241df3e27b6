package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsInstrument(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	ok := metrics.Instrument(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return nil
	}))
	failing := metrics.Instrument(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return errors.New("boom")
	}))

	task := asynq.NewTask(TaskSessionPurge, nil)
	require.NoError(t, ok.ProcessTask(context.Background(), task))
	require.Error(t, failing.ProcessTask(context.Background(), task))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskSessionPurge, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskSessionPurge, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(TaskSessionPurge)))
}

func TestMetricsAddPurged(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.AddPurged(4)
	metrics.AddPurged(0)
	metrics.AddPurged(-1)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.purged))

	var nilMetrics *Metrics
	nilMetrics.AddPurged(2)
}
