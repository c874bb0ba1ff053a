// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"sync"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// ValueCache is the in-process stand-in for the Redis-compatible cache
// store §4.5 requires StartWorker to seed before polling begins: no
// Redis client appears anywhere in the example pack to wire instead (the
// pack's only pub/sub precedent, NATS, is used for C6's channel ingress
// instead — see DESIGN.md), so the last-known-value table is kept as a
// plain sync.RWMutex-guarded map, mirroring the Registry's own
// thread-safety pattern.
type ValueCache struct {
	mu     sync.RWMutex
	values map[int64]schema.TimestampedValue
}

func NewValueCache() *ValueCache {
	return &ValueCache{values: make(map[int64]schema.TimestampedValue)}
}

// Seed loads the given snapshot in bulk, overwriting whatever was cached
// for each point id — used by StartWorker before the device's polling
// engine begins emitting, so the first consumer read never sees a gap.
func (c *ValueCache) Seed(values []schema.TimestampedValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.values[v.PointID] = v
	}
}

// Put records one freshly polled or pushed value, called from the
// worker's OutputFunc on every emission.
func (c *ValueCache) Put(v schema.TimestampedValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[v.PointID] = v
}

func (c *ValueCache) Get(pointID int64) (schema.TimestampedValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[pointID]
	return v, ok
}

// Evict drops the cached value of every point id in pointIDs.
func (c *ValueCache) Evict(pointIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range pointIDs {
		delete(c.values, id)
	}
}
