// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// newTestRouter builds a Router with a nil *nats.Client: every handler
// method under test here only touches r.dispatcher/r.collectorID/
// r.onReload/r.onManualExport, never r.client, so Start (the only method
// that dereferences client) is deliberately not exercised.
func newTestRouter(collectorID int64, d *Dispatcher, onReload func(), onManualExport func(string, schema.Alarm)) *Router {
	return NewRouter(nil, collectorID, d, onReload, onManualExport)
}

func TestHandleAlarmPushesDecodedAlarmToDispatcher(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	r := newTestRouter(1001, d, nil, nil)

	body, _ := json.Marshal(schema.Alarm{PointID: 42, Status: "alert"})
	r.handleAlarm(subjectAlarm, body)

	select {
	case a := <-d.alarms:
		if a.PointID != 42 {
			t.Fatalf("alarm.PointID = %d, want 42", a.PointID)
		}
	default:
		t.Fatal("handleAlarm did not push the decoded alarm onto the dispatcher's alarm lane")
	}
}

func TestHandleAlarmIgnoresInvalidJSON(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	r := newTestRouter(1001, d, nil, nil)

	r.handleAlarm(subjectAlarm, []byte("not json"))

	select {
	case a := <-d.alarms:
		t.Fatalf("handleAlarm pushed an alarm from malformed JSON: %+v", a)
	default:
	}
}

func TestHandleScheduleAndConfigEventsTriggerReload(t *testing.T) {
	calls := 0
	r := newTestRouter(1001, NewDispatcher(nil, nil, nil), func() { calls++ }, nil)

	r.handleScheduleEvent(subjectSchedule, nil)
	r.handleConfigEvent(subjectConfig, nil)
	r.handleConfigEvent(subjectTarget, nil)

	if calls != 3 {
		t.Fatalf("onReload called %d times, want 3 (schedule + config + target)", calls)
	}
}

func TestHandleCommandEventIgnoresOtherCollectors(t *testing.T) {
	called := false
	r := newTestRouter(1001, NewDispatcher(nil, nil, nil), nil, func(target string, a schema.Alarm) {
		called = true
	})

	body, _ := json.Marshal(Command{ServerID: 2002, Command: commandManualExport, TargetName: "t1"})
	r.handleCommandEvent(subjectCommand, body)

	if called {
		t.Fatal("handleCommandEvent dispatched a command addressed to a different collector")
	}
}

func TestHandleCommandEventManualExportDispatchesToOwnCollector(t *testing.T) {
	var gotTarget string
	var gotAlarm schema.Alarm
	r := newTestRouter(1001, NewDispatcher(nil, nil, nil), nil, func(target string, a schema.Alarm) {
		gotTarget = target
		gotAlarm = a
	})

	body, _ := json.Marshal(Command{
		ServerID:   1001,
		Command:    commandManualExport,
		TargetName: "mqtt-broker-1",
		Alarm:      schema.Alarm{PointID: 7, Status: "alert"},
	})
	r.handleCommandEvent(subjectCommand, body)

	if gotTarget != "mqtt-broker-1" {
		t.Fatalf("onManualExport target = %q, want %q", gotTarget, "mqtt-broker-1")
	}
	if gotAlarm.PointID != 7 {
		t.Fatalf("onManualExport alarm.PointID = %d, want 7", gotAlarm.PointID)
	}
}

func TestHandleCommandEventUnrecognizedCommandDoesNotPanic(t *testing.T) {
	r := newTestRouter(1001, NewDispatcher(nil, nil, nil), nil, nil)
	body, _ := json.Marshal(Command{ServerID: 1001, Command: "NOT_A_REAL_COMMAND"})
	r.handleCommandEvent(subjectCommand, body)
}
