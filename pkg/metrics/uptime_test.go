package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSnapshot(t *testing.T) {
	m, err := NewUptime(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveSnapshot(model.UptimeSnapshot{
		LastProcessedHeight: 110,
		WindowSize:          5,
		Validators: []model.ValidatorUptimeRecord{
			{OperatorAddress: "val1", Moniker: "alpha", SignedCount: 4, MissedCount: 1, UptimePercent: 80},
			{OperatorAddress: "val2", Moniker: "beta", SignedCount: 5, UptimePercent: 100},
		},
	})

	assert.Equal(t, 80.0, testutil.ToFloat64(m.validatorUptime.WithLabelValues("val1", "alpha")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validatorMissed.WithLabelValues("val1")))
	assert.Equal(t, 110.0, testutil.ToFloat64(m.lastHeight))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.windowSize))
	assert.Equal(t, 2, testutil.CollectAndCount(m.validatorUptime))

	// validators that left the snapshot drop out of the gauges
	m.ObserveSnapshot(model.UptimeSnapshot{
		LastProcessedHeight: 111,
		WindowSize:          5,
		Validators:          []model.ValidatorUptimeRecord{{OperatorAddress: "val2", Moniker: "beta", UptimePercent: 100}},
	})
	assert.Equal(t, 1, testutil.CollectAndCount(m.validatorUptime))
}

func TestObserveTick(t *testing.T) {
	m, err := NewUptime(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveTick(core.TickReport{From: 101, To: 110, Ingested: 9, FetchFailures: 1, Duration: time.Second, Err: errors.New("fetch block 107")})
	m.ObserveTick(core.TickReport{Err: &core.StatusFetchError{Err: errors.New("down")}})
	m.ObserveTick(core.TickReport{From: 111, To: 111, Ingested: 1, Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksTotal.WithLabelValues("status_error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.blocksIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blockFetchFailed))
}

func TestNewUptimeRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewUptime(reg)
	require.NoError(t, err)

	_, err = NewUptime(reg)
	require.Error(t, err)
}
