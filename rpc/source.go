package rpc

import (
	"context"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/pkg/repository"
)

// BlockSource serves block summaries from the RPC, reading through the block cache it owns.
type BlockSource struct {
	client           *URIClient
	cache            repository.BlocksCache
	retryMaxAttempts int64
	retryMaxWait     time.Duration
	waitForChain     bool
}

type SourceOpts struct {
	RetryMaxAttempts int64
	RetryMaxWait     time.Duration
	WaitForChain     bool
}

func NewBlockSource(client *URIClient, cache repository.BlocksCache, opts SourceOpts) *BlockSource {
	return &BlockSource{
		client:           client,
		cache:            cache,
		retryMaxAttempts: opts.RetryMaxAttempts,
		retryMaxWait:     opts.RetryMaxWait,
		waitForChain:     opts.WaitForChain,
	}
}

func (s *BlockSource) GetLatestHeight(ctx context.Context) (int64, error) {
	var height int64
	err := DoWithRetry(ctx, s.retryMaxAttempts, s.retryMaxWait, "status", func(ctx context.Context) error {
		status, err := s.client.DoStatus(ctx)
		if err != nil {
			return err
		}
		if s.waitForChain && status.SyncInfo.CatchingUp {
			return ErrNodeCatchingUp
		}
		height = status.SyncInfo.LatestBlockHeight
		return nil
	})
	return height, err
}

func (s *BlockSource) GetBlock(ctx context.Context, height int64) (*model.BlockSummary, error) {
	cached, ok, err := s.cache.GetBlock(ctx, height)
	if err != nil {
		config.Log.Warnf("Block cache read failed for height %d. Err: %v", height, err)
	} else if ok {
		return cached, nil
	}

	var summary *model.BlockSummary
	err = DoWithRetry(ctx, s.retryMaxAttempts, s.retryMaxWait, "block", func(ctx context.Context) error {
		res, err := GetBlock(ctx, s.client, height)
		if err != nil {
			return err
		}
		summary, err = ToBlockSummary(res)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.PutBlock(ctx, summary); err != nil {
		config.Log.Warnf("Block cache write failed for height %d. Err: %v", height, err)
	}
	return summary, nil
}
