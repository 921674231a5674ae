package abi

import (
	"sync"

	"github.com/retroenv/x86sem/internal/arch"
)

type callSiteKey struct {
	engine   arch.Engine
	callSite uint64
}

// offsetCache stores the stack adjustment found for calls to functions without
// a known effect. Engines used as keys have to be comparable.
type offsetCache struct {
	mu      sync.Mutex
	offsets map[callSiteKey]int64
}

func newOffsetCache() *offsetCache {
	return &offsetCache{
		offsets: map[callSiteKey]int64{},
	}
}

func (c *offsetCache) get(engine arch.Engine, callSite uint64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.offsets[callSiteKey{engine: engine, callSite: callSite}]
	return off, ok
}

func (c *offsetCache) set(engine arch.Engine, callSite uint64, off int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets[callSiteKey{engine: engine, callSite: callSite}] = off
}
