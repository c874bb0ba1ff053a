// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the Event Subscriber & Dispatcher (C6):
// the in-process ingress every Worker's OutputFunc/AlarmFunc feeds, and
// the out-of-process pub/sub channel router that hot-reloads config and
// routes remote commands.
package dispatch

import (
	"context"

	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// telemetryQueueSize bounds the in-memory value queue. Telemetry is
// lossy by design (§4.6): once full, the oldest queued value is dropped
// to make room for the newest.
const telemetryQueueSize = 4096

// alarmQueueSize bounds the in-memory alarm queue. Unlike telemetry,
// alarms never drop silently — once this fills, PushAlarm hands the
// alarm to onOverflow instead (wired to the export coordinator's
// failed-alarm disk queue, §4.9).
const alarmQueueSize = 1024

// Dispatcher is the in-process ingress every Worker's OutputFunc and
// AlarmFunc feed. It owns two lanes so a slow export coordinator cannot
// make telemetry back up into alarms or vice versa.
type Dispatcher struct {
	telemetry chan schema.TimestampedValue
	alarms    chan schema.Alarm

	onValue   func(schema.TimestampedValue)
	onAlarm   func(schema.Alarm)
	onOverflow func(schema.Alarm)
}

// NewDispatcher wires the Dispatcher's two drain callbacks: onValue and
// onAlarm are typically the export coordinator's mapping/batching entry
// points, onOverflow the failed-alarm disk queue writer.
func NewDispatcher(onValue func(schema.TimestampedValue), onAlarm func(schema.Alarm), onOverflow func(schema.Alarm)) *Dispatcher {
	return &Dispatcher{
		telemetry:  make(chan schema.TimestampedValue, telemetryQueueSize),
		alarms:     make(chan schema.Alarm, alarmQueueSize),
		onValue:    onValue,
		onAlarm:    onAlarm,
		onOverflow: onOverflow,
	}
}

// PushValue is a Worker's OutputFunc. Non-blocking: when the telemetry
// lane is full, the oldest queued value is discarded to admit v.
func (d *Dispatcher) PushValue(v schema.TimestampedValue) {
	select {
	case d.telemetry <- v:
		return
	default:
	}

	select {
	case <-d.telemetry:
	default:
	}
	select {
	case d.telemetry <- v:
	default:
		log.Warnf("dispatch: telemetry queue contended, dropping value for point %d", v.PointID)
	}
}

// PushAlarm is a Worker's AlarmFunc. Non-blocking: when the alarm lane
// is full, the never-silently-drop guarantee is kept by handing the
// alarm to onOverflow instead of discarding it.
func (d *Dispatcher) PushAlarm(a schema.Alarm) {
	select {
	case d.alarms <- a:
		return
	default:
		if d.onOverflow != nil {
			d.onOverflow(a)
		} else {
			log.Errorf("dispatch: alarm queue full and no overflow handler wired, dropping alarm for point %d", a.PointID)
		}
	}
}

// Run drains both lanes until ctx is cancelled. Intended to be called
// once from the collector's boot sequence in its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-d.telemetry:
			if d.onValue != nil {
				d.onValue(v)
			}
		case a := <-d.alarms:
			if d.onAlarm != nil {
				d.onAlarm(a)
			}
		}
	}
}
