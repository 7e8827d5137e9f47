package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/redis/go-redis/v9"
)

const (
	uptimeChannel   = "pub/uptime"
	snapshotKey     = "c/uptime_snapshot"
	blocksKey       = "c/uptime_blocks"
	blockHeightsKey = "c/uptime_block_heights"
)

// BlocksCache keeps recently fetched blocks keyed by height. Eviction is FIFO on first insertion.
type BlocksCache interface {
	GetBlock(ctx context.Context, height int64) (*model.BlockSummary, bool, error)
	PutBlock(ctx context.Context, block *model.BlockSummary) error
	Len(ctx context.Context) (int, error)
}

type UptimeCache interface {
	SetSnapshot(ctx context.Context, snapshot *model.UptimeSnapshot) error
	GetSnapshot(ctx context.Context) (*model.UptimeSnapshot, error)
	PublishSnapshot(ctx context.Context, snapshot *model.UptimeSnapshot) error
}

type Cache struct {
	rdb      *redis.Client
	capacity int
	prefix   string
}

// NewCache returns a redis backed cache. Keys are namespaced with prefix (usually the chain ID)
// so several explorers can share one redis.
func NewCache(rdb *redis.Client, capacity int, prefix string) *Cache {
	return &Cache{
		rdb:      rdb,
		capacity: capacity,
		prefix:   prefix,
	}
}

func (s *Cache) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Cache) GetBlock(ctx context.Context, height int64) (*model.BlockSummary, bool, error) {
	res, err := s.rdb.HGet(ctx, s.key(blocksKey), strconv.FormatInt(height, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var block model.BlockSummary
	if err := json.Unmarshal([]byte(res), &block); err != nil {
		return nil, false, err
	}
	return &block, true, nil
}

// putBlockScript inserts a block and evicts the overflow in one step, so concurrent writers
// never trim a height out of the order list without deleting it from the hash.
// KEYS[1] block hash, KEYS[2] height list. ARGV: height, block JSON, capacity.
var putBlockScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
local overflow = redis.call('LLEN', KEYS[2]) - tonumber(ARGV[3])
if overflow <= 0 then
	return 0
end
local evicted = redis.call('LRANGE', KEYS[2], 0, overflow - 1)
redis.call('LTRIM', KEYS[2], overflow, -1)
redis.call('HDEL', KEYS[1], unpack(evicted))
return overflow
`)

// PutBlock caches block. Re-putting a cached height replaces the value and keeps its position
// in the eviction order.
func (s *Cache) PutBlock(ctx context.Context, block *model.BlockSummary) error {
	res, err := json.Marshal(block)
	if err != nil {
		return err
	}

	keys := []string{s.key(blocksKey), s.key(blockHeightsKey)}
	return putBlockScript.Run(ctx, s.rdb, keys, strconv.FormatInt(block.Height, 10), string(res), s.capacity).Err()
}

func (s *Cache) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.HLen(ctx, s.key(blocksKey)).Result()
	return int(n), err
}

func (s *Cache) SetSnapshot(ctx context.Context, snapshot *model.UptimeSnapshot) error {
	res, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(snapshotKey), string(res), 0).Err()
}

func (s *Cache) GetSnapshot(ctx context.Context) (*model.UptimeSnapshot, error) {
	res, err := s.rdb.Get(ctx, s.key(snapshotKey)).Result()
	if err != nil {
		return nil, err
	}

	var snapshot model.UptimeSnapshot
	if err := json.Unmarshal([]byte(res), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Cache) PublishSnapshot(ctx context.Context, snapshot *model.UptimeSnapshot) error {
	res, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return s.rdb.Publish(ctx, s.key(uptimeChannel), res).Err()
}
