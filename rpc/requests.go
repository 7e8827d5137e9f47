package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
)

var ErrNodeCatchingUp = errors.New("node is still catching up")

// DoWithRetry runs fn and retries failures with an exponential backoff.
// retryMaxAttempts of 0 disables retries, -1 retries until ctx is done.
func DoWithRetry(ctx context.Context, retryMaxAttempts int64, maxRetryTime time.Duration, operation string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || retryMaxAttempts == 0 {
		return err
	}

	if maxRetryTime < 2*time.Second {
		maxRetryTime = 2 * time.Second
	}

	var attempts int64
	currentBackoffDuration, maxReached := GetBackoffDurationForAttempts(attempts, maxRetryTime)

	for err != nil && (retryMaxAttempts < 0 || attempts < retryMaxAttempts) {
		config.Log.ZWarn().Err(err).
			Str("operation", operation).
			Int64("attempt", attempts+1).
			Dur("retry_in", currentBackoffDuration).
			Msg("Request failed, backing off and trying again")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-time.After(currentBackoffDuration):
		}

		attempts++
		err = fn(ctx)

		// guard against overflow
		if !maxReached {
			currentBackoffDuration, maxReached = GetBackoffDurationForAttempts(attempts, maxRetryTime)
		}
	}

	if err != nil {
		config.Log.Errorf("%s failed, reached max retry attempts (%d)", operation, retryMaxAttempts)
	}
	return err
}

func GetBackoffDurationForAttempts(numAttempts int64, maxRetryTime time.Duration) (time.Duration, bool) {
	backoffBase := 1.5
	backoffDuration := time.Duration(math.Pow(backoffBase, float64(numAttempts)) * float64(time.Second))

	maxReached := false
	if backoffDuration > maxRetryTime || backoffDuration < 0 {
		maxReached = true
		backoffDuration = maxRetryTime
	}

	return backoffDuration, maxReached
}

func GetLatestBlockHeight(ctx context.Context, client *URIClient) (int64, error) {
	resStatus, err := client.DoStatus(ctx)
	if err != nil {
		return 0, err
	}
	return resStatus.SyncInfo.LatestBlockHeight, nil
}

// IsCatchingUp true if the node is catching up to the chain, false otherwise
func IsCatchingUp(ctx context.Context, client *URIClient) (bool, error) {
	resStatus, err := client.DoStatus(ctx)
	if err != nil {
		return false, err
	}
	return resStatus.SyncInfo.CatchingUp, nil
}

func GetBlock(ctx context.Context, client *URIClient, height int64) (*ctypes.ResultBlock, error) {
	resp, err := client.DoBlock(ctx, &height)
	if err != nil {
		return nil, err
	}
	if resp.Block == nil {
		return nil, fmt.Errorf("block %d missing from response", height)
	}
	return resp, nil
}
