// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Test and maintenance modes restored from the C++ original's CSP
// Gateway (SUPPLEMENTED FEATURES #4): each constructs a synthetic event
// and pushes it straight through the coordinator, bypassing the normal
// device polling ingress, for operators verifying an export target
// without waiting on live telemetry.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func syntheticAlarm(pointID int64, pointName string) schema.Alarm {
	return schema.Alarm{
		PointID:     pointID,
		PointName:   pointName,
		Description: "synthetic test alarm",
		MeasuredValue: schema.NewFloatValue(99.9),
		AlarmFlag:   true,
		Status:      "alert",
		TimestampMs: time.Now().UnixMilli(),
	}
}

func syntheticValue(pointID int64) schema.TimestampedValue {
	return schema.TimestampedValue{
		PointID:     pointID,
		Value:       schema.NewFloatValue(42.0),
		Quality:     schema.QualityGood,
		TimestampMs: time.Now().UnixMilli(),
	}
}

func runTestAlarm(ctx context.Context, a *app) {
	fmt.Println("test-alarm: pushing one synthetic alarm")
	a.coordinator.HandleAlarm(ctx, syntheticAlarm(1, "test-point"))
}

func runTestMulti(ctx context.Context, a *app) {
	fmt.Println("test-multi: pushing five synthetic alarms")
	for i := int64(1); i <= 5; i++ {
		a.coordinator.HandleAlarm(ctx, syntheticAlarm(i, fmt.Sprintf("test-point-%d", i)))
	}
}

func runTestBatch(ctx context.Context, a *app) {
	fmt.Println("test-batch: pushing a synthetic value batch")
	values := make([]schema.TimestampedValue, 0, 10)
	for i := int64(1); i <= 10; i++ {
		values = append(values, syntheticValue(i))
	}
	a.coordinator.HandleValueBatch(ctx, values)
}

func runTestConnection(ctx context.Context, a *app) {
	fmt.Println("test-connection: checking every enabled export target")
	results := a.coordinator.TestTargets(ctx)
	for name, ok := range results {
		status := "OK"
		if !ok {
			status = "FAILED"
		}
		fmt.Printf("  %-30s %s\n", name, status)
	}
}

func runTestAll(ctx context.Context, a *app) {
	runTestConnection(ctx, a)
	runTestAlarm(ctx, a)
	runTestMulti(ctx, a)
	runTestBatch(ctx, a)
}

// runCleanup releases every cached handler connection (idle HTTP/S3/MQTT
// clients) without running a full daemon cycle, for operators rotating
// credentials or freeing sockets before a maintenance window.
func runCleanup(a *app) {
	fmt.Println("cleanup: releasing cached handler connections")
	a.cache.Clear()
}

// runTestModes executes whichever one-shot flags were set and returns
// true if it handled any of them (the caller should then exit).
func runTestModes(ctx context.Context, a *app) bool {
	ran := false
	if flagTestAll {
		runTestAll(ctx, a)
		ran = true
	} else {
		if flagTestConnection {
			runTestConnection(ctx, a)
			ran = true
		}
		if flagTestAlarm {
			runTestAlarm(ctx, a)
			ran = true
		}
		if flagTestMulti {
			runTestMulti(ctx, a)
			ran = true
		}
		if flagTestBatch {
			runTestBatch(ctx, a)
			ran = true
		}
	}
	if flagCleanup {
		runCleanup(a)
		ran = true
	}
	return ran
}
