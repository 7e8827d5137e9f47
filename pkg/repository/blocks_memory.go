package repository

import (
	"context"
	"sync"

	"github.com/DefiantLabs/warden-explorer/pkg/model"
)

// MemoryBlocksCache is a fixed capacity FIFO cache. Insertion order is kept in a ring of
// heights, so eviction of the oldest entry is O(1).
type MemoryBlocksCache struct {
	mu      sync.Mutex
	heights []int64
	oldest  int
	size    int
	blocks  map[int64]*model.BlockSummary
}

func NewMemoryBlocksCache(capacity int) *MemoryBlocksCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryBlocksCache{
		heights: make([]int64, capacity),
		blocks:  make(map[int64]*model.BlockSummary, capacity),
	}
}

func (c *MemoryBlocksCache) GetBlock(_ context.Context, height int64) (*model.BlockSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	block, ok := c.blocks[height]
	return block, ok, nil
}

func (c *MemoryBlocksCache) PutBlock(_ context.Context, block *model.BlockSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.blocks[block.Height]; ok {
		c.blocks[block.Height] = block
		return nil
	}

	if c.size == len(c.heights) {
		delete(c.blocks, c.heights[c.oldest])
		c.heights[c.oldest] = block.Height
		c.oldest = (c.oldest + 1) % len(c.heights)
	} else {
		c.heights[(c.oldest+c.size)%len(c.heights)] = block.Height
		c.size++
	}
	c.blocks[block.Height] = block
	return nil
}

func (c *MemoryBlocksCache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks), nil
}
