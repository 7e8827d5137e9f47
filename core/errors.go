package core

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfOrderHeight  = errors.New("height is not above the last height in the window")
	ErrUnknownValidator  = errors.New("unknown validator")
	ErrInvalidWindowSize = errors.New("invalid window size")
)

// IdentityResolutionError means a validator's consensus key could not be turned into a
// consensus identity. The validator is left out of signature matching.
type IdentityResolutionError struct {
	OperatorAddress string
	Err             error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("resolve consensus identity for %s: %v", e.OperatorAddress, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// BlockFetchError means a single height could not be fetched. The height is skipped.
type BlockFetchError struct {
	Height int64
	Err    error
}

func (e *BlockFetchError) Error() string {
	return fmt.Sprintf("fetch block %d: %v", e.Height, e.Err)
}

func (e *BlockFetchError) Unwrap() error { return e.Err }

// RegistryFetchError means the validator set could not be listed. The last known registry stays in use.
type RegistryFetchError struct {
	Err error
}

func (e *RegistryFetchError) Error() string {
	return fmt.Sprintf("fetch validator registry: %v", e.Err)
}

func (e *RegistryFetchError) Unwrap() error { return e.Err }

// StatusFetchError means the latest height is unknown and the whole tick was aborted.
type StatusFetchError struct {
	Err error
}

func (e *StatusFetchError) Error() string {
	return fmt.Sprintf("fetch chain status: %v", e.Err)
}

func (e *StatusFetchError) Unwrap() error { return e.Err }
