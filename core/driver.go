package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/util"
	"github.com/alitto/pond/v2"
	"github.com/go-co-op/gocron"
)

const (
	DefaultWarmupBlocks     = 10
	DefaultMaxCatchUp       = 50
	DefaultFetchWorkers     = 4
	DefaultRegistryInterval = 5 * time.Minute
	DefaultMaxWindowSize    = 10000

	MinPollInterval = time.Second
	MaxPollInterval = 60 * time.Second

	// used in auto mode until a block time could be estimated
	fallbackPollInterval = 6 * time.Second
)

type BlockSource interface {
	GetLatestHeight(ctx context.Context) (int64, error)
	GetBlock(ctx context.Context, height int64) (*model.BlockSummary, error)
}

type ValidatorRegistry interface {
	ListValidators(ctx context.Context) ([]model.ValidatorInfo, error)
}

type DriverConfig struct {
	WindowSize    int
	MaxWindowSize int
	AccountPrefix string
	WarmupBlocks  int64
	MaxCatchUp    int64
	FetchWorkers  int
	// Zero polls at the estimated block time.
	PollInterval     time.Duration
	PollingEnabled   bool
	RegistryInterval time.Duration
}

func (c *DriverConfig) setDefaults() {
	if c.WarmupBlocks <= 0 {
		c.WarmupBlocks = DefaultWarmupBlocks
	}
	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = DefaultMaxCatchUp
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = DefaultFetchWorkers
	}
	if c.RegistryInterval <= 0 {
		c.RegistryInterval = DefaultRegistryInterval
	}
	if c.MaxWindowSize <= 0 {
		c.MaxWindowSize = DefaultMaxWindowSize
	}
}

func (c *DriverConfig) checkWindowSize(size int) error {
	if size <= 0 {
		return ErrInvalidWindowSize
	}
	if size > c.MaxWindowSize {
		return fmt.Errorf("%w: %d exceeds the maximum of %d", ErrInvalidWindowSize, size, c.MaxWindowSize)
	}
	return nil
}

// TickReport describes one pass over a height range.
type TickReport struct {
	From, To      int64
	Ingested      int
	FetchFailures int
	Duration      time.Duration
	Err           error
}

// Driver owns the aggregator and is its only writer. Every mutation runs under tickMu.
type Driver struct {
	cfg      DriverConfig
	source   BlockSource
	registry ValidatorRegistry
	agg      *Aggregator
	pool     pond.Pool

	tickMu sync.Mutex

	mu                sync.Mutex
	interval          time.Duration
	blockTime         time.Duration
	polling           bool
	lastErr           error
	lastErrAt         time.Time
	snapshotListeners []func(model.UptimeSnapshot)
	tickListeners     []func(TickReport)
	scheduler         *gocron.Scheduler
	pollJob           *gocron.Job
	runCtx            context.Context
	cancel            context.CancelFunc
	bg                sync.WaitGroup
}

func NewDriver(cfg DriverConfig, source BlockSource, registry ValidatorRegistry) (*Driver, error) {
	cfg.setDefaults()
	if cfg.PollInterval != 0 && cfg.PollInterval < MinPollInterval {
		return nil, fmt.Errorf("poll interval %s is below the minimum of %s", cfg.PollInterval, MinPollInterval)
	}
	if err := cfg.checkWindowSize(cfg.WindowSize); err != nil {
		return nil, err
	}

	agg, err := NewAggregator(cfg.WindowSize, cfg.AccountPrefix)
	if err != nil {
		return nil, err
	}

	return &Driver{
		cfg:      cfg,
		source:   source,
		registry: registry,
		agg:      agg,
		pool:     pond.NewPool(cfg.FetchWorkers),
		interval: cfg.PollInterval,
		polling:  cfg.PollingEnabled,
	}, nil
}

// OnSnapshot registers fn to receive the snapshot after every mutation. Listeners run on the
// driver's goroutine and must not block.
func (d *Driver) OnSnapshot(fn func(model.UptimeSnapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshotListeners = append(d.snapshotListeners, fn)
}

func (d *Driver) OnTick(fn func(TickReport)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickListeners = append(d.tickListeners, fn)
}

// Start runs the initial backfill, then keeps the windows current on the poll schedule
// until ctx is cancelled or Stop is called.
func (d *Driver) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.runCtx, d.cancel = runCtx, cancel
	d.mu.Unlock()

	if err := d.Backfill(runCtx); err != nil {
		// Tick rebuilds the whole window while the watermark is still zero
		config.Log.Error("Initial backfill failed", err)
	}

	if int64(d.cfg.WindowSize) > d.cfg.WarmupBlocks {
		d.bg.Add(1)
		go func() {
			defer d.bg.Done()
			if err := d.Resync(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				config.Log.Error("Background window fill failed", err)
			}
		}()
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(d.cfg.RegistryInterval).WaitForSchedule().Do(func() {
		if err := d.RefreshRegistry(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			config.Log.Error("Scheduled registry refresh failed", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule registry refresh: %w", err)
	}

	d.mu.Lock()
	d.scheduler = scheduler
	err = d.reschedulePollLocked()
	d.mu.Unlock()
	if err != nil {
		cancel()
		return err
	}

	scheduler.StartAsync()
	return nil
}

// Stop cancels the run context, stops the schedule and waits for in-flight work.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, scheduler := d.cancel, d.scheduler
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	d.bg.Wait()

	// wait for a tick the scheduler already started
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	d.pool.StopAndWait()
}

// Backfill loads the registry and ingests the most recent few blocks so the windows have
// data right away. Resync fills the rest of the window.
func (d *Driver) Backfill(ctx context.Context) error {
	if err := d.RefreshRegistry(ctx); err != nil {
		config.Log.Warn("Starting without a validator registry", err)
	}

	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	latest, err := d.source.GetLatestHeight(ctx)
	if err != nil {
		err = &StatusFetchError{Err: err}
		d.recordError(err)
		return err
	}
	if latest <= 0 {
		return nil
	}

	warm := util.MinInt64(d.cfg.WarmupBlocks, int64(d.agg.WindowSize()))
	from := util.MaxInt64(latest-warm+1, 1)

	report := d.ingestRange(ctx, d.agg.IngestBlock, from, latest)
	if report.To >= from {
		d.agg.SetLastProcessedHeight(report.To)
	}
	d.publish(report)

	config.Log.Infof("Warm-up ingested %d blocks in [%d, %d]", report.Ingested, from, report.To)
	return report.Err
}

// Tick ingests the blocks produced since the last processed height. At most MaxCatchUp
// blocks are fetched, older ones are skipped.
func (d *Driver) Tick(ctx context.Context) error {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	latest, err := d.source.GetLatestHeight(ctx)
	if err != nil {
		err = &StatusFetchError{Err: err}
		d.recordError(err)
		d.notifyTick(TickReport{Err: err})
		return err
	}

	watermark := d.agg.LastProcessedHeight()
	if latest <= watermark {
		return nil
	}

	if watermark == 0 {
		// nothing ingested yet, a catch-up range would leave the window short
		err := d.rebuildLocked(ctx, d.agg.WindowSize(), latest)
		if err == nil {
			d.clearError()
		}
		return err
	}

	from := watermark + 1
	if floor := latest - d.cfg.MaxCatchUp + 1; floor > from {
		config.Log.Warnf("Behind by %d blocks, skipping to %d", latest-watermark, floor)
		from = floor
	}
	from = util.MaxInt64(from, 1)

	report := d.ingestRange(ctx, d.agg.IngestBlock, from, latest)
	if report.To >= from {
		d.agg.SetLastProcessedHeight(report.To)
	}
	d.publish(report)

	if report.Err == nil && report.FetchFailures == 0 {
		d.clearError()
	}
	return report.Err
}

// Refresh triggers an immediate tick.
func (d *Driver) Refresh(ctx context.Context) error {
	return d.Tick(ctx)
}

// Resync rebuilds every window from the most recent N blocks at the current watermark.
func (d *Driver) Resync(ctx context.Context) error {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	return d.resyncLocked(ctx, d.agg.WindowSize())
}

// SetWindowSize changes N and rebuilds the windows for the new size. The previous windows
// stay visible until the rebuild has finished.
func (d *Driver) SetWindowSize(ctx context.Context, size int) error {
	if err := d.cfg.checkWindowSize(size); err != nil {
		return err
	}

	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	config.Log.Infof("Changing window size from %d to %d", d.agg.WindowSize(), size)
	return d.resyncLocked(ctx, size)
}

func (d *Driver) resyncLocked(ctx context.Context, size int) error {
	target := d.agg.LastProcessedHeight()
	if target <= 0 {
		latest, err := d.source.GetLatestHeight(ctx)
		if err != nil {
			err = &StatusFetchError{Err: err}
			d.recordError(err)
			return err
		}
		target = latest
	}
	return d.rebuildLocked(ctx, size, target)
}

// rebuildLocked fills a fresh state of the given size from the N blocks ending at target and
// swaps it in. On failure the current windows are kept.
func (d *Driver) rebuildLocked(ctx context.Context, size int, target int64) error {
	fresh, err := d.agg.Fresh(size)
	if err != nil {
		return err
	}

	from := target - int64(size) + 1
	if from < 1 {
		from = 1
	}

	report := d.ingestRange(ctx, fresh.IngestBlock, from, target)
	if report.Err != nil {
		// keep serving the old windows
		d.notifyTick(report)
		return report.Err
	}

	fresh.LastProcessedHeight = target
	d.agg.Swap(fresh)
	d.publish(report)

	config.Log.Infof("Rebuilt windows of size %d from [%d, %d], %d blocks unavailable", size, from, target, report.FetchFailures)
	return nil
}

// RefreshRegistry reloads the validator list. A change in the identity mapping makes the
// existing windows stale, so they are rebuilt.
func (d *Driver) RefreshRegistry(ctx context.Context) error {
	validators, err := d.registry.ListValidators(ctx)
	if err != nil {
		err = &RegistryFetchError{Err: err}
		d.recordError(err)
		return err
	}

	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	changed := d.agg.ApplyRegistry(validators)
	config.Log.Debugf("Registry refreshed with %d validators, identity mapping changed: %t", len(validators), changed)

	if changed && d.agg.LastProcessedHeight() > 0 {
		return d.resyncLocked(ctx, d.agg.WindowSize())
	}
	return nil
}

type fetchResult struct {
	block *model.BlockSummary
	err   error
	done  bool
}

// ingestRange fetches [from, to] in parallel and ingests the blocks in ascending order with
// apply. Heights that fail to fetch are skipped. If ctx is cancelled only the contiguous
// fetched prefix is ingested and report.To is the last height of that prefix.
func (d *Driver) ingestRange(ctx context.Context, apply func(*model.BlockSummary) int, from, to int64) TickReport {
	start := time.Now()
	report := TickReport{From: from, To: from - 1}

	results := d.fetchRange(ctx, from, to)

	var timestamps []time.Time
	for i, res := range results {
		height := from + int64(i)
		if !res.done {
			break
		}
		report.To = height

		if res.err != nil {
			fetchErr := &BlockFetchError{Height: height, Err: res.err}
			config.Log.Warn("Skipping block", fetchErr)
			d.recordError(fetchErr)
			report.FetchFailures++
			continue
		}

		apply(res.block)
		report.Ingested++
		timestamps = append(timestamps, res.block.Time)
	}

	if report.To < to {
		report.Err = ctx.Err()
		if report.Err == nil {
			report.Err = fmt.Errorf("range [%d, %d] stopped at %d", from, to, report.To)
		}
	}

	d.estimateBlockTime(timestamps)
	report.Duration = time.Since(start)
	return report
}

func (d *Driver) fetchRange(ctx context.Context, from, to int64) []fetchResult {
	if to < from {
		return nil
	}

	var mu sync.Mutex
	results := make([]fetchResult, to-from+1)

	group := d.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for height := from; height <= to; height++ {
		h := height
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}

			block, err := d.source.GetBlock(groupCtx, h)
			if err != nil && groupCtx.Err() != nil {
				// cancelled, not a failure of this height
				return
			}

			mu.Lock()
			results[h-from] = fetchResult{block: block, err: err, done: true}
			mu.Unlock()
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		config.Log.Warn("Block fetch group encountered error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]fetchResult, len(results))
	copy(out, results)
	return out
}

// estimateBlockTime averages the spacing of consecutive ingested blocks.
func (d *Driver) estimateBlockTime(timestamps []time.Time) {
	if len(timestamps) < 2 {
		return
	}
	span := timestamps[len(timestamps)-1].Sub(timestamps[0])
	if span <= 0 {
		return
	}
	estimate := clampInterval(span / time.Duration(len(timestamps)-1))

	d.mu.Lock()
	defer d.mu.Unlock()
	if estimate == d.blockTime {
		return
	}
	d.blockTime = estimate
	if d.interval == 0 {
		if err := d.reschedulePollLocked(); err != nil {
			config.Log.Error("Failed to reschedule polling", err)
		}
	}
}

func clampInterval(interval time.Duration) time.Duration {
	if interval < MinPollInterval {
		return MinPollInterval
	}
	if interval > MaxPollInterval {
		return MaxPollInterval
	}
	return interval
}

// SetInterval changes the poll cadence. Zero switches to the estimated block time.
func (d *Driver) SetInterval(interval time.Duration) error {
	if interval != 0 && (interval < MinPollInterval || interval > MaxPollInterval) {
		return fmt.Errorf("poll interval %s outside [%s, %s]", interval, MinPollInterval, MaxPollInterval)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = interval
	return d.reschedulePollLocked()
}

// SetPolling pauses or resumes polling. Resuming continues from the last processed height.
func (d *Driver) SetPolling(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.polling == enabled {
		return nil
	}
	d.polling = enabled
	config.Log.Infof("Polling enabled: %t", enabled)
	return d.reschedulePollLocked()
}

// PollInterval returns the configured interval (zero in auto mode) and the one in effect.
func (d *Driver) PollInterval() (configured, effective time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval, d.effectiveIntervalLocked()
}

func (d *Driver) Polling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polling
}

func (d *Driver) effectiveIntervalLocked() time.Duration {
	if d.interval != 0 {
		return d.interval
	}
	if d.blockTime != 0 {
		return d.blockTime
	}
	return fallbackPollInterval
}

func (d *Driver) reschedulePollLocked() error {
	if d.scheduler == nil {
		return nil
	}

	if d.pollJob != nil {
		d.scheduler.RemoveByReference(d.pollJob)
		d.pollJob = nil
	}
	if !d.polling {
		return nil
	}

	runCtx := d.runCtx
	interval := d.effectiveIntervalLocked()
	job, err := d.scheduler.Every(interval).WaitForSchedule().Do(func() {
		if err := d.Tick(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			config.Log.Error("Scheduled tick failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule polling every %s: %w", interval, err)
	}
	d.pollJob = job
	config.Log.Debugf("Polling every %s", interval)
	return nil
}

// Snapshot returns a consistent copy of every record plus the most recent failure.
func (d *Driver) Snapshot() model.UptimeSnapshot {
	snap := d.agg.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr != nil {
		at := d.lastErrAt
		snap.LastError = d.lastErr.Error()
		snap.LastErrorAt = &at
	}
	return snap
}

func (d *Driver) Validator(operator string) (model.ValidatorUptimeRecord, bool) {
	return d.agg.Record(operator)
}

func (d *Driver) recordError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
	d.lastErrAt = time.Now().UTC()
}

func (d *Driver) clearError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = nil
	d.lastErrAt = time.Time{}
}

func (d *Driver) publish(report TickReport) {
	d.notifyTick(report)

	d.mu.Lock()
	listeners := d.snapshotListeners
	d.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	snap := d.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (d *Driver) notifyTick(report TickReport) {
	d.mu.Lock()
	listeners := d.tickListeners
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(report)
	}
}
