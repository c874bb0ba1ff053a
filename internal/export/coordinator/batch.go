// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"sync"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// valueBatcher accumulates TimestampedValues for one target until
// max_batch_size or batch_timeout_ms is reached, whichever first, per
// §4.9's batching rule. Alarms never go through this path.
type valueBatcher struct {
	mu      sync.Mutex
	values  []schema.TimestampedValue
	maxSize int
	timeout time.Duration
	timer   *time.Timer
	flush   func([]schema.TimestampedValue)
}

func newValueBatcher(maxSize int, timeout time.Duration, flush func([]schema.TimestampedValue)) *valueBatcher {
	if maxSize <= 0 {
		maxSize = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &valueBatcher{maxSize: maxSize, timeout: timeout, flush: flush}
}

// Add appends v, flushing immediately once maxSize is reached; otherwise
// it arms a timer so a sparse target still flushes within timeout.
func (b *valueBatcher) Add(v schema.TimestampedValue) {
	b.mu.Lock()
	b.values = append(b.values, v)

	if len(b.values) >= b.maxSize {
		batch := b.values
		b.values = nil
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
		b.flush(batch)
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.timeout, b.flushOnTimeout)
	}
	b.mu.Unlock()
}

func (b *valueBatcher) flushOnTimeout() {
	b.mu.Lock()
	if len(b.values) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}
	batch := b.values
	b.values = nil
	b.timer = nil
	b.mu.Unlock()

	b.flush(batch)
}
