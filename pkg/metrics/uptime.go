// Package metrics exports the uptime windows as prometheus metrics.
package metrics

import (
	"errors"

	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warden_explorer"

type Uptime struct {
	validatorUptime   *prometheus.GaugeVec
	validatorSigned   *prometheus.GaugeVec
	validatorMissed   *prometheus.GaugeVec
	lastHeight        prometheus.Gauge
	windowSize        prometheus.Gauge
	ticksTotal        *prometheus.CounterVec
	blockFetchFailed  prometheus.Counter
	blocksIngested    prometheus.Counter
	tickDurationHisto prometheus.Histogram
}

// NewUptime creates the collectors and registers them with reg.
func NewUptime(reg prometheus.Registerer) (*Uptime, error) {
	m := &Uptime{
		validatorUptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_uptime_percent",
			Help:      "Share of signed blocks in the trailing window, by validator.",
		}, []string{"operator", "moniker"}),
		validatorSigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_signed_blocks",
			Help:      "Signed blocks in the trailing window, by validator.",
		}, []string{"operator"}),
		validatorMissed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validator_missed_blocks",
			Help:      "Missed blocks in the trailing window, by validator.",
		}, []string{"operator"}),
		lastHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_height",
			Help:      "Height up to which blocks have been ingested.",
		}),
		windowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Number of trailing blocks tracked per validator.",
		}),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling passes, by result.",
		}, []string{"result"}),
		blockFetchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_fetch_failures_total",
			Help:      "Heights skipped because the block could not be fetched.",
		}),
		blocksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_ingested_total",
			Help:      "Blocks applied to the uptime windows.",
		}),
		tickDurationHisto: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent fetching and ingesting a height range.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.validatorUptime, m.validatorSigned, m.validatorMissed, m.lastHeight, m.windowSize,
		m.ticksTotal, m.blockFetchFailed, m.blocksIngested, m.tickDurationHisto,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveSnapshot replaces the per-validator gauges with the snapshot's values.
func (m *Uptime) ObserveSnapshot(snapshot model.UptimeSnapshot) {
	m.validatorUptime.Reset()
	m.validatorSigned.Reset()
	m.validatorMissed.Reset()

	for _, v := range snapshot.Validators {
		m.validatorUptime.WithLabelValues(v.OperatorAddress, v.Moniker).Set(v.UptimePercent)
		m.validatorSigned.WithLabelValues(v.OperatorAddress).Set(float64(v.SignedCount))
		m.validatorMissed.WithLabelValues(v.OperatorAddress).Set(float64(v.MissedCount))
	}
	m.lastHeight.Set(float64(snapshot.LastProcessedHeight))
	m.windowSize.Set(float64(snapshot.WindowSize))
}

func (m *Uptime) ObserveTick(report core.TickReport) {
	result := "ok"
	if report.Err != nil {
		result = "error"
		var statusErr *core.StatusFetchError
		if errors.As(report.Err, &statusErr) {
			result = "status_error"
		}
	}
	m.ticksTotal.WithLabelValues(result).Inc()
	m.blockFetchFailed.Add(float64(report.FetchFailures))
	m.blocksIngested.Add(float64(report.Ingested))
	if report.Duration > 0 {
		m.tickDurationHisto.Observe(report.Duration.Seconds())
	}
}
