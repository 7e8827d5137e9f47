package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
)

type validatorRecord struct {
	info     model.ValidatorInfo
	identity ConsensusIdentity
	valcons  string
	keyErr   error
	window   *window
}

func (r *validatorRecord) toModel() model.ValidatorUptimeRecord {
	out := model.ValidatorUptimeRecord{
		OperatorAddress: r.info.OperatorAddress,
		ConsensusID:     r.identity.String(),
		ValconsAddress:  r.valcons,
		Moniker:         r.info.Moniker,
		Tokens:          r.info.Tokens,
		BondStatus:      r.info.Status,
		Jailed:          r.info.Jailed,
		Window:          r.window.slice(),
		SignedCount:     r.window.signed,
		MissedCount:     r.window.missed,
		UptimePercent:   r.window.uptimePercent(),
	}
	if r.keyErr != nil {
		out.IdentityError = r.keyErr.Error()
	}
	return out
}

// AggregatorState holds every validator's trailing window. It is not safe for concurrent use,
// the Aggregator guards it.
type AggregatorState struct {
	LastProcessedHeight int64
	WindowSize          int

	accountPrefix string
	records       map[string]*validatorRecord
	identities    map[ConsensusIdentity]string
}

func NewAggregatorState(windowSize int, accountPrefix string) (*AggregatorState, error) {
	if windowSize <= 0 {
		return nil, ErrInvalidWindowSize
	}
	return &AggregatorState{
		WindowSize:    windowSize,
		accountPrefix: accountPrefix,
		records:       make(map[string]*validatorRecord),
		identities:    make(map[ConsensusIdentity]string),
	}, nil
}

// ApplyRegistry refreshes the descriptive fields of every listed validator and resolves
// consensus identities for new or re-keyed validators. It reports whether the identity
// mapping changed, in which case existing windows no longer line up with the registry.
func (s *AggregatorState) ApplyRegistry(validators []model.ValidatorInfo) bool {
	changed := false

	for _, v := range validators {
		rec, ok := s.records[v.OperatorAddress]
		if !ok {
			rec = &validatorRecord{window: newWindow(s.WindowSize)}
			s.records[v.OperatorAddress] = rec
			s.resolve(rec, v)
			if rec.identity != "" {
				changed = true
			}
			rec.info = v
			continue
		}

		if rec.info.ConsensusPubKey != v.ConsensusPubKey {
			previous := rec.identity
			s.resolve(rec, v)
			if rec.identity != previous {
				config.Log.Infof("Consensus identity of %s changed from %q to %q", v.OperatorAddress, previous, rec.identity)
				changed = true
			}
		}
		rec.info = v
	}

	return changed
}

func (s *AggregatorState) resolve(rec *validatorRecord, v model.ValidatorInfo) {
	if rec.identity != "" && s.identities[rec.identity] == v.OperatorAddress {
		delete(s.identities, rec.identity)
	}
	rec.identity, rec.valcons, rec.keyErr = "", "", nil

	identity, err := ResolveConsensusIdentity(v.ConsensusPubKey)
	if err != nil {
		rec.keyErr = &IdentityResolutionError{OperatorAddress: v.OperatorAddress, Err: err}
		config.Log.Warn("Validator excluded from signature matching", rec.keyErr)
		return
	}

	if other, taken := s.identities[identity]; taken && other != v.OperatorAddress {
		config.Log.Warnf("Consensus identity %s is claimed by both %s and %s, keeping the latter", identity, other, v.OperatorAddress)
		if otherRec, ok := s.records[other]; ok {
			otherRec.identity, otherRec.valcons = "", ""
		}
	}

	rec.identity = identity
	s.identities[identity] = v.OperatorAddress

	if s.accountPrefix != "" {
		valcons, err := identity.Bech32(s.accountPrefix)
		if err != nil {
			config.Log.Debugf("Could not render valcons address for %s. Err: %v", v.OperatorAddress, err)
		}
		rec.valcons = valcons
	}
}

// Ingest records one block outcome for one validator. Heights must be strictly increasing per validator.
func (s *AggregatorState) Ingest(operator string, height int64, signed bool, ts time.Time) error {
	rec, ok := s.records[operator]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, operator)
	}
	return s.ingest(rec, height, signed, ts)
}

func (s *AggregatorState) ingest(rec *validatorRecord, height int64, signed bool, ts time.Time) error {
	if last, ok := rec.window.last(); ok && height <= last.Height {
		return fmt.Errorf("%w: got %d, last %d", ErrOutOfOrderHeight, height, last.Height)
	}
	rec.window.push(height, signed, ts)
	return nil
}

// IngestBlock applies one block to every bonded validator with a resolved identity and
// returns how many windows were updated. Validators that are not bonded keep their window as is.
func (s *AggregatorState) IngestBlock(block *model.BlockSummary) int {
	signedBy := make(map[ConsensusIdentity]bool, len(block.Signatures))
	for _, sig := range block.Signatures {
		id := NormalizeConsensusAddress(sig.ConsensusAddress)
		signedBy[id] = signedBy[id] || sig.Signed
	}

	updated := 0
	for operator, rec := range s.records {
		if rec.identity == "" || rec.info.Status != model.BondStatusBonded {
			continue
		}

		err := s.ingest(rec, block.Height, signedBy[rec.identity], block.Time)
		if err != nil {
			if !errors.Is(err, ErrOutOfOrderHeight) {
				config.Log.Errorf("Failed to ingest block %d for %s. Err: %v", block.Height, operator, err)
			}
			continue
		}
		updated++
	}
	return updated
}

// Fresh returns an empty state with the same registry and identities but a new window size.
func (s *AggregatorState) Fresh(windowSize int) (*AggregatorState, error) {
	out, err := NewAggregatorState(windowSize, s.accountPrefix)
	if err != nil {
		return nil, err
	}
	for operator, rec := range s.records {
		out.records[operator] = &validatorRecord{
			info:     rec.info,
			identity: rec.identity,
			valcons:  rec.valcons,
			keyErr:   rec.keyErr,
			window:   newWindow(windowSize),
		}
	}
	for id, operator := range s.identities {
		out.identities[id] = operator
	}
	return out, nil
}

func (s *AggregatorState) Record(operator string) (model.ValidatorUptimeRecord, bool) {
	rec, ok := s.records[operator]
	if !ok {
		return model.ValidatorUptimeRecord{}, false
	}
	return rec.toModel(), true
}

// Records returns copies of every record, highest voting power first.
func (s *AggregatorState) Records() []model.ValidatorUptimeRecord {
	out := make([]model.ValidatorUptimeRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.toModel())
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Tokens.Cmp(out[j].Tokens); c != 0 {
			return c > 0
		}
		return out[i].OperatorAddress < out[j].OperatorAddress
	})
	return out
}

// Aggregator serializes access to the current AggregatorState. Resyncs build a new state
// off to the side and Swap it in, so readers never observe a partially rebuilt window.
type Aggregator struct {
	mu    sync.RWMutex
	state *AggregatorState
}

func NewAggregator(windowSize int, accountPrefix string) (*Aggregator, error) {
	st, err := NewAggregatorState(windowSize, accountPrefix)
	if err != nil {
		return nil, err
	}
	return &Aggregator{state: st}, nil
}

func (a *Aggregator) Ingest(operator string, height int64, signed bool, ts time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Ingest(operator, height, signed, ts)
}

func (a *Aggregator) IngestBlock(block *model.BlockSummary) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.IngestBlock(block)
}

func (a *Aggregator) ApplyRegistry(validators []model.ValidatorInfo) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ApplyRegistry(validators)
}

func (a *Aggregator) SetLastProcessedHeight(height int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.LastProcessedHeight = height
}

func (a *Aggregator) LastProcessedHeight() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.LastProcessedHeight
}

func (a *Aggregator) WindowSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.WindowSize
}

// Fresh returns an empty copy of the current state for a rebuild.
func (a *Aggregator) Fresh(windowSize int) (*AggregatorState, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Fresh(windowSize)
}

func (a *Aggregator) Swap(st *AggregatorState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = st
}

func (a *Aggregator) Record(operator string) (model.ValidatorUptimeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Record(operator)
}

func (a *Aggregator) Records() []model.ValidatorUptimeRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Records()
}

// Snapshot copies the records together with the height they are current as of.
func (a *Aggregator) Snapshot() model.UptimeSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return model.UptimeSnapshot{
		LastProcessedHeight: a.state.LastProcessedHeight,
		WindowSize:          a.state.WindowSize,
		UpdatedAt:           time.Now().UTC(),
		Validators:          a.state.Records(),
	}
}
