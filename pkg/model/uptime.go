package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BondStatus string

const (
	BondStatusBonded      BondStatus = "bonded"
	BondStatusUnbonding   BondStatus = "unbonding"
	BondStatusUnbonded    BondStatus = "unbonded"
	BondStatusUnspecified BondStatus = "unspecified"
)

// CommitSignature is a single entry of a block's last commit.
type CommitSignature struct {
	ConsensusAddress string
	Signed           bool
}

type BlockSummary struct {
	Height     int64
	Time       time.Time
	Signatures []CommitSignature
}

// ConsensusPubKey is the consensus key as served by the staking REST API.
type ConsensusPubKey struct {
	Type string
	Key  string // base64
}

type ValidatorInfo struct {
	OperatorAddress string
	ConsensusPubKey ConsensusPubKey
	Moniker         string
	Tokens          decimal.Decimal
	Status          BondStatus
	Jailed          bool
}

type WindowEntry struct {
	Height int64     `json:"height"`
	Signed bool      `json:"signed"`
	Time   time.Time `json:"time"`
}

type ValidatorUptimeRecord struct {
	OperatorAddress string          `json:"operator_address"`
	ConsensusID     string          `json:"consensus_id"`
	ValconsAddress  string          `json:"valcons_address,omitempty"`
	Moniker         string          `json:"moniker"`
	Tokens          decimal.Decimal `json:"tokens"`
	BondStatus      BondStatus      `json:"bond_status"`
	Jailed          bool            `json:"jailed"`
	Window          []WindowEntry   `json:"window"`
	SignedCount     int             `json:"signed_count"`
	MissedCount     int             `json:"missed_count"`
	UptimePercent   float64         `json:"uptime_percent"`
	IdentityError   string          `json:"identity_error,omitempty"`
}

type UptimeSnapshot struct {
	LastProcessedHeight int64                   `json:"last_processed_height"`
	WindowSize          int                     `json:"window_size"`
	UpdatedAt           time.Time               `json:"updated_at"`
	LastError           string                  `json:"last_error,omitempty"`
	LastErrorAt         *time.Time              `json:"last_error_at,omitempty"`
	Validators          []ValidatorUptimeRecord `json:"validators"`
}
