package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DefiantLabs/warden-explorer/pkg/repository"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	jsonrpc "github.com/cometbft/cometbft/rpc/jsonrpc/client"
	types "github.com/cometbft/cometbft/rpc/jsonrpc/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	signerAddr = cmttypes.Address{0x63, 0x0d, 0xcd, 0x29, 0x66, 0xc4, 0x33, 0x66, 0x91, 0x12, 0x54, 0x48, 0xbb, 0xb2, 0x5b, 0x4f, 0xf4, 0x12, 0xa4, 0x9c}
	missedAddr = cmttypes.Address{0x66, 0x68, 0x7a, 0xad, 0xf8, 0x62, 0xbd, 0x77, 0x6c, 0x8f, 0xc1, 0x8b, 0x8e, 0x9f, 0x8e, 0x20, 0x08, 0x97, 0x14, 0x85}
	nilVoteAddr = cmttypes.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14}
)

func testResultBlock(height int64) *ctypes.ResultBlock {
	ts := time.Unix(1700000000+height*6, 0).UTC()
	return &ctypes.ResultBlock{
		Block: &cmttypes.Block{
			Header: cmttypes.Header{ChainID: "warden-test", Height: height, Time: ts},
			LastCommit: &cmttypes.Commit{
				Height: height - 1,
				Signatures: []cmttypes.CommitSig{
					{BlockIDFlag: cmttypes.BlockIDFlagCommit, ValidatorAddress: signerAddr, Timestamp: ts, Signature: []byte{1, 2, 3}},
					{BlockIDFlag: cmttypes.BlockIDFlagAbsent, ValidatorAddress: missedAddr},
					{BlockIDFlag: cmttypes.BlockIDFlagNil, ValidatorAddress: nilVoteAddr, Timestamp: ts, Signature: []byte{4}},
					{BlockIDFlag: cmttypes.BlockIDFlagAbsent},
				},
			},
		},
	}
}

func writeRPCResult(t *testing.T, w http.ResponseWriter, id types.JSONRPCIntID, result interface{}) {
	resp := types.NewRPCSuccessResponse(id, result)
	bz, err := json.Marshal(resp)
	require.NoError(t, err)
	_, _ = w.Write(bz)
}

const statusResult = `{"jsonrpc":"2.0","id":-1,"result":{"sync_info":{"latest_block_height":"%HEIGHT%","latest_block_time":"2024-01-01T00:00:00Z","catching_up":%CATCHING_UP%}}}`

type fakeNode struct {
	height      string
	catchingUp  string
	blockHits   atomic.Int32
	statusCalls atomic.Int32
}

func newFakeNode(t *testing.T, node *fakeNode) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		node.statusCalls.Add(1)
		body := strings.NewReplacer("%HEIGHT%", node.height, "%CATCHING_UP%", node.catchingUp).Replace(statusResult)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		node.blockHits.Add(1)
		// the URI transport sends the height as a quoted string
		height, err := strconv.ParseInt(strings.Trim(r.URL.Query().Get("height"), `"`), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeRPCResult(t, w, jsonrpc.URIClientRequestID, testResultBlock(height))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestToBlockSummary(t *testing.T) {
	summary, err := ToBlockSummary(testResultBlock(10))
	require.NoError(t, err)

	assert.Equal(t, int64(10), summary.Height)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), summary.Time)
	require.Len(t, summary.Signatures, 3, "absent entries without an address are dropped")

	assert.Equal(t, "630DCD2966C4336691125448BBB25B4FF412A49C", summary.Signatures[0].ConsensusAddress)
	assert.True(t, summary.Signatures[0].Signed)
	assert.Equal(t, "66687AADF862BD776C8FC18B8E9F8E2008971485", summary.Signatures[1].ConsensusAddress)
	assert.False(t, summary.Signatures[1].Signed)
	assert.True(t, summary.Signatures[2].Signed, "a vote carrying a signature counts as signed")

	_, err = ToBlockSummary(nil)
	require.Error(t, err)

	noCommit := testResultBlock(1)
	noCommit.Block.LastCommit = nil
	summary, err = ToBlockSummary(noCommit)
	require.NoError(t, err)
	assert.Empty(t, summary.Signatures)
}

func TestURIClientStatusAndBlock(t *testing.T) {
	node := &fakeNode{height: "42", catchingUp: "false"}
	srv := newFakeNode(t, node)
	client := NewURIClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	height, err := GetLatestBlockHeight(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(42), height)

	catchingUp, err := IsCatchingUp(ctx, client)
	require.NoError(t, err)
	assert.False(t, catchingUp)

	block, err := GetBlock(ctx, client, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), block.Block.Height)
	require.NotNil(t, block.Block.LastCommit)
	assert.Len(t, block.Block.LastCommit.Signatures, 4)
}

func TestURIClientErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	mux.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		resp := types.RPCInternalError(jsonrpc.URIClientRequestID, errors.New("height 7 is not available"))
		bz, _ := json.Marshal(resp)
		_, _ = w.Write(bz)
	})
	mux.HandleFunc("/validators", func(w http.ResponseWriter, r *http.Request) {
		writeRPCResult(t, w, types.JSONRPCIntID(5), &ctypes.ResultValidators{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewURIClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	_, err := client.DoStatus(ctx)
	require.ErrorContains(t, err, "502")

	_, err = GetBlock(ctx, client, 7)
	require.ErrorContains(t, err, "height 7 is not available")

	_, err = client.DoHTTPGet(ctx, "validators", nil, new(ctypes.ResultValidators))
	require.ErrorContains(t, err, "wrong ID")
}

func TestBlockSourceReadsThroughCache(t *testing.T) {
	node := &fakeNode{height: "42", catchingUp: "false"}
	srv := newFakeNode(t, node)

	cache := repository.NewMemoryBlocksCache(10)
	source := NewBlockSource(NewURIClient(srv.URL, 5*time.Second), cache, SourceOpts{})
	ctx := context.Background()

	latest, err := source.GetLatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), latest)

	first, err := source.GetBlock(ctx, 41)
	require.NoError(t, err)
	second, err := source.GetBlock(ctx, 41)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), node.blockHits.Load())

	n, err := cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBlockSourceWaitsForChain(t *testing.T) {
	node := &fakeNode{height: "42", catchingUp: "true"}
	srv := newFakeNode(t, node)
	ctx := context.Background()

	source := NewBlockSource(NewURIClient(srv.URL, 5*time.Second), repository.NewMemoryBlocksCache(10), SourceOpts{WaitForChain: true})
	_, err := source.GetLatestHeight(ctx)
	require.ErrorIs(t, err, ErrNodeCatchingUp)

	source = NewBlockSource(NewURIClient(srv.URL, 5*time.Second), repository.NewMemoryBlocksCache(10), SourceOpts{})
	latest, err := source.GetLatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), latest)
}

func TestDoWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := DoWithRetry(ctx, 0, time.Second, "no-retry", func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = DoWithRetry(ctx, 3, time.Second, "retry-once", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = DoWithRetry(cancelled, -1, time.Second, "cancelled", func(context.Context) error {
		return errors.New("still failing")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetBackoffDurationForAttempts(t *testing.T) {
	d, maxReached := GetBackoffDurationForAttempts(0, 30*time.Second)
	assert.Equal(t, time.Second, d)
	assert.False(t, maxReached)

	d, maxReached = GetBackoffDurationForAttempts(2, 30*time.Second)
	assert.Equal(t, 2250*time.Millisecond, d)
	assert.False(t, maxReached)

	d, maxReached = GetBackoffDurationForAttempts(20, 30*time.Second)
	assert.Equal(t, 30*time.Second, d)
	assert.True(t, maxReached)
}
