package service

import (
	"context"
	"errors"
	"time"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
)

var ErrValidatorNotFound = errors.New("validator not found")

// Tracker is the part of the polling driver the presentation layer talks to.
type Tracker interface {
	Snapshot() model.UptimeSnapshot
	Validator(operator string) (model.ValidatorUptimeRecord, bool)
	SetWindowSize(ctx context.Context, size int) error
	Refresh(ctx context.Context) error
	SetPolling(enabled bool) error
	SetInterval(interval time.Duration) error
	Polling() bool
	PollInterval() (configured, effective time.Duration)
}

type PollingState struct {
	Enabled           bool   `json:"enabled"`
	Interval          string `json:"interval"`
	EffectiveInterval string `json:"effective_interval"`
}

type Uptime interface {
	GetUptimeSnapshot(ctx context.Context) (*model.UptimeSnapshot, error)
	Validator(ctx context.Context, operator string) (*model.ValidatorUptimeRecord, error)
	SetWindowSize(ctx context.Context, size int) error
	Refresh(ctx context.Context) (*model.UptimeSnapshot, error)
	SetPolling(ctx context.Context, enabled *bool, interval *time.Duration) (*PollingState, error)
	Polling(ctx context.Context) *PollingState
}

type uptime struct {
	tracker Tracker
}

func NewUptime(tracker Tracker) *uptime {
	return &uptime{tracker: tracker}
}

func (s *uptime) GetUptimeSnapshot(_ context.Context) (*model.UptimeSnapshot, error) {
	snapshot := s.tracker.Snapshot()
	return &snapshot, nil
}

func (s *uptime) Validator(_ context.Context, operator string) (*model.ValidatorUptimeRecord, error) {
	rec, ok := s.tracker.Validator(operator)
	if !ok {
		return nil, ErrValidatorNotFound
	}
	return &rec, nil
}

func (s *uptime) SetWindowSize(ctx context.Context, size int) error {
	return s.tracker.SetWindowSize(ctx, size)
}

func (s *uptime) Refresh(ctx context.Context) (*model.UptimeSnapshot, error) {
	if err := s.tracker.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.GetUptimeSnapshot(ctx)
}

func (s *uptime) SetPolling(ctx context.Context, enabled *bool, interval *time.Duration) (*PollingState, error) {
	if interval != nil {
		if err := s.tracker.SetInterval(*interval); err != nil {
			return nil, err
		}
	}
	if enabled != nil {
		if err := s.tracker.SetPolling(*enabled); err != nil {
			return nil, err
		}
	}
	return s.Polling(ctx), nil
}

func (s *uptime) Polling(_ context.Context) *PollingState {
	configured, effective := s.tracker.PollInterval()
	state := &PollingState{
		Enabled:           s.tracker.Polling(),
		Interval:          "auto",
		EffectiveInterval: effective.String(),
	}
	if configured != 0 {
		state.Interval = configured.String()
	}
	return state
}
