package consumer

import (
	"context"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/pkg/repository"
	"github.com/rs/zerolog/log"
)

type cacheConsumer struct {
	snapshotsCh chan model.UptimeSnapshot
	uptime      repository.UptimeCache
}

// NewCacheConsumer stores and publishes every snapshot pushed through Offer. Only the most
// recent pending snapshot is kept, older ones are superseded.
func NewCacheConsumer(uptime repository.UptimeCache) *cacheConsumer {
	return &cacheConsumer{uptime: uptime, snapshotsCh: make(chan model.UptimeSnapshot, 1)}
}

// Offer queues snapshot without blocking the caller.
func (s *cacheConsumer) Offer(snapshot model.UptimeSnapshot) {
	for {
		select {
		case s.snapshotsCh <- snapshot:
			return
		default:
		}
		// drop the stale one
		select {
		case <-s.snapshotsCh:
		default:
		}
	}
}

func (s *cacheConsumer) RunSnapshots(ctx context.Context) error {
	log.Info().Msgf("Starting cache consumer: RunSnapshots")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("breaking the worker loop.")
			return nil
		case snapshot := <-s.snapshotsCh:
			if err := s.uptime.SetSnapshot(ctx, &snapshot); err != nil {
				log.Err(err).Msgf("Error storing snapshot")
			}
			if err := s.uptime.PublishSnapshot(ctx, &snapshot); err != nil {
				log.Err(err).Msgf("Error publishing snapshot")
			}
		}
	}
}
