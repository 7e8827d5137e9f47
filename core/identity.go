package core

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/cosmos/cosmos-sdk/crypto/keys/ed25519"
	"github.com/cosmos/cosmos-sdk/types/bech32"
)

var (
	ErrMissingPubKey      = errors.New("consensus pubkey is missing")
	ErrMalformedPubKey    = errors.New("consensus pubkey is malformed")
	ErrUnsupportedKeyType = errors.New("unsupported consensus key type")
)

// ConsensusIdentity is the upper-case hex consensus address used in commit signatures.
type ConsensusIdentity string

func (c ConsensusIdentity) String() string {
	return string(c)
}

// Bytes returns the raw 20 byte address.
func (c ConsensusIdentity) Bytes() ([]byte, error) {
	return hex.DecodeString(string(c))
}

// Bech32 renders the identity as a valcons address, e.g. wardenvalcons1...
func (c ConsensusIdentity) Bech32(accountPrefix string) (string, error) {
	bz, err := c.Bytes()
	if err != nil {
		return "", err
	}
	return bech32.ConvertAndEncode(accountPrefix+"valcons", bz)
}

var ed25519KeyTypes = map[string]struct{}{
	"/cosmos.crypto.ed25519.PubKey": {},
	"tendermint/PubKeyEd25519":      {},
	"ed25519":                       {},
}

// ResolveConsensusIdentity derives the consensus identity from the validator's consensus key:
// the first 20 bytes of SHA-256 over the raw key, hex encoded and upper-cased.
func ResolveConsensusIdentity(pk model.ConsensusPubKey) (ConsensusIdentity, error) {
	if pk.Key == "" {
		return "", ErrMissingPubKey
	}
	if _, ok := ed25519KeyTypes[pk.Type]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyType, pk.Type)
	}

	bz, err := base64.StdEncoding.DecodeString(pk.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPubKey, err)
	}
	if len(bz) != ed25519.PubKeySize {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedPubKey, ed25519.PubKeySize, len(bz))
	}

	pubkey := &ed25519.PubKey{Key: bz}
	return ConsensusIdentity(strings.ToUpper(hex.EncodeToString(pubkey.Address().Bytes()))), nil
}

// NormalizeConsensusAddress turns a commit signature address into a ConsensusIdentity.
func NormalizeConsensusAddress(addr string) ConsensusIdentity {
	return ConsensusIdentity(strings.ToUpper(addr))
}
