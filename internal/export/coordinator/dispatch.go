// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smart-guard/pulseone-core/internal/export/transform"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// dispatchAlarm resolves the target's template, renders the payload,
// sends it, logs the attempt (§4.9 step 6), and on failure enqueues the
// alarm to the disk queue (§4.9 step 5) instead of dropping it.
func (c *Coordinator) dispatchAlarm(ctx context.Context, target schema.ExportTarget, alarm schema.Alarm) {
	h, ok := c.handlers[target.Kind]
	if !ok {
		log.Warnf("export: no handler for target kind %s", target.Kind)
		return
	}

	mapping, _ := c.resolveMapping(target, alarm.PointID, alarm.SiteID)
	template := c.resolveTemplate(target)

	payload, err := c.transformer.RenderAlarm(alarm, mapping, template, nil)
	if err != nil {
		log.Warnf("export: rendering alarm for target %s: %v", target.Name, err)
		c.writeLog(target, schema.TargetSendResult{TargetType: target.Kind, TargetName: target.Name, ErrorMessage: err.Error()})
		return
	}

	start := time.Now()
	result := h.SendPayload(ctx, payload, target)
	result.LatencyMs = time.Since(start).Milliseconds()

	c.writeLog(target, result)

	if !result.Success {
		if err := c.diskQueue.Enqueue(target.ID, alarm); err != nil {
			log.Warnf("export: enqueuing failed alarm for target %s: %v", target.Name, err)
		}
	}
}

// resolveTemplate follows target.template_id → PayloadTemplate, falling
// back to the GENERIC transport default when unset or unresolvable.
func (c *Coordinator) resolveTemplate(target schema.ExportTarget) json.RawMessage {
	if target.TemplateID != nil {
		tmpl, err := c.templates.FindByID(*target.TemplateID)
		if err == nil {
			return tmpl.Body
		}
		log.Warnf("export: loading template %d for target %s: %v", *target.TemplateID, target.Name, err)
	}
	return transform.DefaultTemplate("GENERIC")
}

func (c *Coordinator) writeLog(target schema.ExportTarget, result schema.TargetSendResult) {
	entry := schema.ExportLog{
		TargetID:     target.ID,
		AttemptCount: result.AttemptCount,
		Success:      result.Success,
		StatusCode:   result.StatusCode,
		SentPayload:  result.SentPayload,
		ResponseBody: result.ResponseBody,
		ErrorMessage: result.ErrorMessage,
		StartedAt:    time.Now().Add(-time.Duration(result.LatencyMs) * time.Millisecond),
		FinishedAt:   time.Now(),
		LatencyMs:    result.LatencyMs,
	}
	if _, err := c.logs.Save(&entry); err != nil {
		log.Warnf("export: writing export log for target %d: %v", target.ID, err)
	}
}

// HandleValueBatch is the entry point for a Worker's telemetry output
// (C6 path 1, non-alarm events). Each value is routed to its applicable
// targets' per-target batcher, which flushes on max_batch_size or
// batch_timeout_ms, whichever first (§4.9's batching rule).
func (c *Coordinator) HandleValueBatch(ctx context.Context, values []schema.TimestampedValue) {
	targets, err := c.targets.FindEnabled(c.tenantID)
	if err != nil {
		log.Warnf("export: listing enabled targets: %v", err)
		return
	}

	for _, v := range values {
		for _, target := range targets {
			if _, matched := c.resolveMapping(target, v.PointID, 0); !matched {
				continue
			}
			c.batcherFor(ctx, target).Add(v)
		}
	}
}

func (c *Coordinator) batcherFor(ctx context.Context, target schema.ExportTarget) *valueBatcher {
	c.batchersMu.Lock()
	defer c.batchersMu.Unlock()

	if b, ok := c.batchers[target.ID]; ok {
		return b
	}

	timeout := time.Duration(target.BatchTimeoutMs) * time.Millisecond
	b := newValueBatcher(target.MaxBatchSize, timeout, func(batch []schema.TimestampedValue) {
		c.sendValueBatch(ctx, target, batch)
	})
	c.batchers[target.ID] = b
	return b
}

func (c *Coordinator) sendValueBatch(ctx context.Context, target schema.ExportTarget, batch []schema.TimestampedValue) {
	h, ok := c.handlers[target.Kind]
	if !ok {
		return
	}

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	results := h.SendValueBatch(ctx, batch, target)
	for _, r := range results {
		c.writeLog(target, r)
	}
}

// retrySweep drains the failed-alarm disk queue, per §4.9 step 5's
// "a background thread retries the disk queue on its own cadence".
func (c *Coordinator) retrySweep() {
	c.diskQueue.Sweep(func(targetID int64, alarm schema.Alarm) bool {
		target, err := c.targets.FindByID(targetID)
		if err != nil {
			log.Warnf("export: retry sweep: target %d no longer exists: %v", targetID, err)
			return false
		}
		if !target.Enabled {
			return false
		}

		h, ok := c.handlers[target.Kind]
		if !ok {
			return false
		}

		mapping, _ := c.resolveMapping(target, alarm.PointID, alarm.SiteID)
		template := c.resolveTemplate(target)
		payload, err := c.transformer.RenderAlarm(alarm, mapping, template, nil)
		if err != nil {
			return false
		}

		result := h.SendPayload(context.Background(), payload, target)
		c.writeLog(target, result)
		return result.Success
	})
}
