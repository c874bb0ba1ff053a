// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestDispatcherRunDrainsBothLanes(t *testing.T) {
	var mu sync.Mutex
	var values []int64
	var alarms []int64

	d := NewDispatcher(
		func(v schema.TimestampedValue) {
			mu.Lock()
			values = append(values, v.PointID)
			mu.Unlock()
		},
		func(a schema.Alarm) {
			mu.Lock()
			alarms = append(alarms, a.PointID)
			mu.Unlock()
		},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.PushValue(schema.TimestampedValue{PointID: 1})
	d.PushAlarm(schema.Alarm{PointID: 2})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(values) == 1 && len(alarms) == 1
		mu.Unlock()
		if got {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Run did not drain both lanes within 1s: values=%v alarms=%v", values, alarms)
}

// TestPushValueDropsOldestWhenTelemetryQueueFull is §4.6's lossy-telemetry
// guarantee: PushValue never blocks, discarding the oldest queued value to
// admit the newest once the lane is full. No Run goroutine drains the
// channel here, so the queue fills deterministically.
func TestPushValueDropsOldestWhenTelemetryQueueFull(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)

	for i := int64(0); i < telemetryQueueSize; i++ {
		d.PushValue(schema.TimestampedValue{PointID: i})
	}
	if len(d.telemetry) != telemetryQueueSize {
		t.Fatalf("telemetry queue len = %d, want %d after filling it", len(d.telemetry), telemetryQueueSize)
	}

	d.PushValue(schema.TimestampedValue{PointID: 9999})
	if len(d.telemetry) != telemetryQueueSize {
		t.Fatalf("telemetry queue len = %d after overflow push, want still %d", len(d.telemetry), telemetryQueueSize)
	}

	first := <-d.telemetry
	if first.PointID == 0 {
		t.Fatal("PushValue did not drop the oldest queued value to admit the new one")
	}
}

// TestPushAlarmOverflowsToHandlerInsteadOfDropping is the "alarms never
// drop silently" half of §4.6: once the alarm lane is full, the newest
// alarm is handed to onOverflow rather than discarded or blocking.
func TestPushAlarmOverflowsToHandlerInsteadOfDropping(t *testing.T) {
	var overflowed []int64
	d := NewDispatcher(nil, nil, func(a schema.Alarm) {
		overflowed = append(overflowed, a.PointID)
	})

	for i := int64(0); i < alarmQueueSize; i++ {
		d.PushAlarm(schema.Alarm{PointID: i})
	}
	if len(overflowed) != 0 {
		t.Fatalf("onOverflow called %d times before the queue was full", len(overflowed))
	}

	d.PushAlarm(schema.Alarm{PointID: 9999})
	if len(overflowed) != 1 || overflowed[0] != 9999 {
		t.Fatalf("overflowed = %v, want exactly the alarm that overflowed the queue", overflowed)
	}
}
