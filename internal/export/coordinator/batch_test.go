// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestValueBatcherFlushesOnMaxSize(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]schema.TimestampedValue

	b := newValueBatcher(3, time.Hour, func(batch []schema.TimestampedValue) {
		mu.Lock()
		flushed = append(flushed, batch)
		mu.Unlock()
	})

	b.Add(schema.TimestampedValue{PointID: 1})
	b.Add(schema.TimestampedValue{PointID: 2})

	mu.Lock()
	n := len(flushed)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("flush called before maxSize reached: %d calls", n)
	}

	b.Add(schema.TimestampedValue{PointID: 3})

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 1 || len(flushed[0]) != 3 {
		t.Fatalf("flushed = %v, want exactly one batch of 3", flushed)
	}
}

func TestValueBatcherFlushesOnTimeout(t *testing.T) {
	done := make(chan []schema.TimestampedValue, 1)
	b := newValueBatcher(100, 20*time.Millisecond, func(batch []schema.TimestampedValue) {
		done <- batch
	})

	b.Add(schema.TimestampedValue{PointID: 1})

	select {
	case batch := <-done:
		if len(batch) != 1 {
			t.Fatalf("timeout-flushed batch = %v, want 1 value", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("valueBatcher did not flush within its timeout")
	}
}

func TestValueBatcherZeroConfigFallsBackToSaneDefaults(t *testing.T) {
	flushed := make(chan []schema.TimestampedValue, 1)
	b := newValueBatcher(0, 0, func(batch []schema.TimestampedValue) { flushed <- batch })

	b.Add(schema.TimestampedValue{PointID: 1})

	select {
	case batch := <-flushed:
		if len(batch) != 1 {
			t.Fatalf("batch = %v, want 1 value (maxSize should default to 1)", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("valueBatcher with maxSize<=0 never flushed")
	}
}
