// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

import (
	"encoding/json"

	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/nats"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// Channel name prefixes from §4.6, translated from the spec's
// Redis-style "category:*" glob into NATS' dot-delimited subject/
// wildcard convention ("category.*" — NATS wildcards match whole tokens
// between dots, not arbitrary substrings), so one category still fans
// out to every subject published under it.
const (
	subjectAlarm    = "alarm.*"
	subjectSchedule = "schedule.*"
	subjectConfig   = "config.*"
	subjectTarget   = "target.*"
	subjectCommand  = "cmd.*"
)

// Command is the decoded body of a message on the cmd.* subject.
// ServerID addresses one collector instance; a command not addressed to
// this collector is ignored rather than acted on.
type Command struct {
	ServerID   int64        `json:"serverId"`
	Command    string       `json:"command"`
	TargetName string       `json:"target_name"`
	Alarm      schema.Alarm `json:"alarm"`
}

const commandManualExport = "MANUAL_EXPORT"

// Router subscribes to the out-of-process pub/sub ingress and routes
// each category to its handler. Config/target messages trigger a hot
// reload of export target configuration; command messages addressed to
// this collector dispatch to the export coordinator directly.
type Router struct {
	client      *nats.Client
	collectorID int64
	dispatcher  *Dispatcher

	onReload       func()
	onManualExport func(targetName string, alarm schema.Alarm)
}

// NewRouter wires a Router. onReload is called for config.*, target.*
// and schedule.* messages (§4.6: "Config and target channels trigger
// registry.loadFromDatabase()"); onManualExport backs the MANUAL_EXPORT
// command.
func NewRouter(client *nats.Client, collectorID int64, dispatcher *Dispatcher, onReload func(), onManualExport func(string, schema.Alarm)) *Router {
	return &Router{client: client, collectorID: collectorID, dispatcher: dispatcher, onReload: onReload, onManualExport: onManualExport}
}

// Start subscribes every pattern handler. Returns the first subscribe
// error; already-successful subscriptions remain active since pkg/nats
// has no atomic multi-subscribe primitive.
func (r *Router) Start() error {
	if err := r.client.Subscribe(subjectAlarm, r.handleAlarm); err != nil {
		return err
	}
	if err := r.client.Subscribe(subjectSchedule, r.handleScheduleEvent); err != nil {
		return err
	}
	if err := r.client.Subscribe(subjectConfig, r.handleConfigEvent); err != nil {
		return err
	}
	if err := r.client.Subscribe(subjectTarget, r.handleConfigEvent); err != nil {
		return err
	}
	return r.client.Subscribe(subjectCommand, r.handleCommandEvent)
}

// handleAlarm decodes a remote alarm notification and injects it into
// the in-process alarm lane so it flows through the same overflow
// handling as a Worker-originated alarm.
func (r *Router) handleAlarm(subject string, data []byte) {
	var a schema.Alarm
	if err := json.Unmarshal(data, &a); err != nil {
		log.Warnf("dispatch: decoding alarm on %s: %v", subject, err)
		return
	}
	r.dispatcher.PushAlarm(a)
}

// handleScheduleEvent calls onReload, the same callback config.* and
// target.* messages use. It does not resync ExportSchedules itself; the
// export coordinator's periodic syncSchedules job picks up a changed
// cron_expression without a collector restart (SUPPLEMENTED FEATURES #6).
func (r *Router) handleScheduleEvent(subject string, data []byte) {
	if r.onReload != nil {
		r.onReload()
	}
}

// handleConfigEvent hot-reloads export target configuration; both
// config.* and target.* route here since neither carries a payload the
// collector needs to interpret beyond "something changed, requery it".
func (r *Router) handleConfigEvent(subject string, data []byte) {
	if r.onReload != nil {
		r.onReload()
	}
}

// handleCommandEvent ignores any command not addressed to this
// collector, then switches on Command.Command.
func (r *Router) handleCommandEvent(subject string, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warnf("dispatch: decoding command on %s: %v", subject, err)
		return
	}
	if cmd.ServerID != r.collectorID {
		return
	}

	switch cmd.Command {
	case commandManualExport:
		if r.onManualExport != nil {
			r.onManualExport(cmd.TargetName, cmd.Alarm)
		}
	default:
		log.Warnf("dispatch: unrecognized command %q", cmd.Command)
	}
}
