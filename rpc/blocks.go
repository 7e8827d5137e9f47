package rpc

import (
	"errors"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// ToBlockSummary keeps the parts of a block the uptime tracker needs: height, time and
// who signed the last commit. A signature counts as signed when the vote was a commit or
// carries a signature.
func ToBlockSummary(res *ctypes.ResultBlock) (*model.BlockSummary, error) {
	if res == nil || res.Block == nil {
		return nil, errors.New("empty block response")
	}

	summary := &model.BlockSummary{
		Height: res.Block.Height,
		Time:   res.Block.Time,
	}

	if res.Block.LastCommit == nil {
		return summary, nil
	}

	summary.Signatures = make([]model.CommitSignature, 0, len(res.Block.LastCommit.Signatures))
	for _, sig := range res.Block.LastCommit.Signatures {
		if sig.BlockIDFlag == cmttypes.BlockIDFlagAbsent && len(sig.ValidatorAddress) == 0 {
			continue
		}
		summary.Signatures = append(summary.Signatures, model.CommitSignature{
			ConsensusAddress: sig.ValidatorAddress.String(),
			Signed:           sig.BlockIDFlag == cmttypes.BlockIDFlagCommit || len(sig.Signature) > 0,
		})
	}

	return summary, nil
}
