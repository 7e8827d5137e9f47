package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/rpc"
	"github.com/DefiantLabs/warden-explorer/util"
)

// Registry lists validators from the chain's REST API.
type Registry struct {
	host             string
	client           *http.Client
	retryMaxAttempts int64
	retryMaxWait     time.Duration
}

func NewRegistry(host string, timeout time.Duration, retryMaxAttempts int64, retryMaxWait time.Duration) *Registry {
	return &Registry{
		host:             strings.TrimRight(host, "/"),
		client:           &http.Client{Timeout: timeout},
		retryMaxAttempts: retryMaxAttempts,
		retryMaxWait:     retryMaxWait,
	}
}

// ListValidators returns every validator regardless of bond status.
func (r *Registry) ListValidators(ctx context.Context) ([]model.ValidatorInfo, error) {
	return r.list(ctx, "")
}

func (r *Registry) ListBondedValidators(ctx context.Context) ([]model.ValidatorInfo, error) {
	return r.list(ctx, BondStatusBonded)
}

func (r *Registry) list(ctx context.Context, status string) ([]model.ValidatorInfo, error) {
	var resp GetValidatorsResponse
	err := rpc.DoWithRetry(ctx, r.retryMaxAttempts, r.retryMaxWait, "validators", func(ctx context.Context) error {
		var err error
		resp, err = GetValidators(ctx, r.client, r.host, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	validators := make([]model.ValidatorInfo, 0, len(resp.Validators))
	for _, v := range resp.Validators {
		validators = append(validators, ToValidatorInfo(v))
	}
	return validators, nil
}

func ToValidatorInfo(v Validator) model.ValidatorInfo {
	return model.ValidatorInfo{
		OperatorAddress: v.OperatorAddress,
		ConsensusPubKey: model.ConsensusPubKey{
			Type: v.ConsensusPubkey.Type,
			Key:  v.ConsensusPubkey.Key,
		},
		Moniker: v.Description.Moniker,
		Tokens:  util.ParseTokens(v.Tokens),
		Status:  toBondStatus(v.Status),
		Jailed:  v.Jailed,
	}
}

func toBondStatus(status string) model.BondStatus {
	switch status {
	case BondStatusBonded:
		return model.BondStatusBonded
	case BondStatusUnbonding:
		return model.BondStatusUnbonding
	case BondStatusUnbonded:
		return model.BondStatusUnbonded
	default:
		return model.BondStatusUnspecified
	}
}
