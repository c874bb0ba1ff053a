// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coordinator implements the Export Coordinator (C9): for each
// inbound alarm or value batch, resolve the applicable targets, render
// payloads, dispatch concurrently, and persist whatever fails to a disk
// queue for later retry.
package coordinator

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/smart-guard/pulseone-core/internal/export/handler"
	"github.com/smart-guard/pulseone-core/internal/export/transform"
	"github.com/smart-guard/pulseone-core/internal/registry"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

const defaultRetrySweepInterval = 5 * time.Minute

// Coordinator fans an event out to every applicable export target, per
// §4.9's six-step pipeline.
type Coordinator struct {
	tenantID int64

	targets   *repository.ExportTargetRepository
	mappings  *repository.ExportTargetMappingRepository
	templates *repository.PayloadTemplateRepository
	logs      *repository.ExportLogRepository
	schedules *repository.ExportScheduleRepository

	transformer *transform.Transformer
	handlers    map[schema.TargetKind]handler.ITargetHandler
	diskQueue   *DiskQueue
	valueCache  *registry.ValueCache

	sem chan struct{} // bounds concurrent target dispatch to the worker pool size

	batchersMu sync.Mutex
	batchers   map[int64]*valueBatcher

	scheduleMu   sync.Mutex
	scheduleJobs map[int64]scheduleJob

	cron gocron.Scheduler
}

// Config is the subset of CollectorConfig the coordinator needs.
type Config struct {
	TenantID                int64
	FailedFilePath          string
	KeepFailedFilesDays     int
	AutoCleanupSuccessFiles bool
	ExportWorkerPoolSize    int
}

func New(
	targets *repository.ExportTargetRepository,
	mappings *repository.ExportTargetMappingRepository,
	templates *repository.PayloadTemplateRepository,
	logs *repository.ExportLogRepository,
	schedules *repository.ExportScheduleRepository,
	cache *handler.ClientCacheManager,
	valueCache *registry.ValueCache,
	secrets handler.SecretResolver,
	cfg Config,
) (*Coordinator, error) {
	handlers := make(map[schema.TargetKind]handler.ITargetHandler, 4)
	for _, kind := range []schema.TargetKind{schema.TargetHTTP, schema.TargetS3, schema.TargetMQTT, schema.TargetFile} {
		h, err := handler.New(kind, cache, secrets)
		if err != nil {
			return nil, err
		}
		handlers[kind] = h
	}

	poolSize := cfg.ExportWorkerPoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() * 2
		if poolSize > 8 {
			poolSize = 8
		}
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		tenantID:     cfg.TenantID,
		targets:      targets,
		mappings:     mappings,
		templates:    templates,
		logs:         logs,
		schedules:    schedules,
		valueCache:   valueCache,
		transformer:  transform.New(),
		handlers:     handlers,
		diskQueue:    NewDiskQueue(cfg.FailedFilePath, cfg.KeepFailedFilesDays, cfg.AutoCleanupSuccessFiles),
		sem:          make(chan struct{}, poolSize),
		batchers:     make(map[int64]*valueBatcher),
		scheduleJobs: make(map[int64]scheduleJob),
	}
	c.cron = cron

	if _, err := cron.NewJob(
		gocron.DurationJob(defaultRetrySweepInterval),
		gocron.NewTask(c.retrySweep),
	); err != nil {
		return nil, err
	}

	if schedules != nil {
		if _, err := cron.NewJob(
			gocron.DurationJob(scheduleSyncInterval),
			gocron.NewTask(c.syncSchedules),
		); err != nil {
			return nil, err
		}
	}

	cron.Start()

	if schedules != nil {
		c.syncSchedules()
	}

	return c, nil
}

func (c *Coordinator) Shutdown() error {
	return c.cron.Shutdown()
}

// HandleAlarm is the entry point the dispatcher's alarm lane (C6) and the
// MANUAL_EXPORT command path both feed.
func (c *Coordinator) HandleAlarm(ctx context.Context, alarm schema.Alarm) {
	targets, err := c.targets.FindEnabled(c.tenantID)
	if err != nil {
		log.Warnf("export: listing enabled targets: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		if _, matched := c.resolveMapping(target, alarm.PointID, alarm.SiteID); !matched {
			continue
		}
		if c.withinIgnoreWindow(target, alarm) {
			continue
		}

		target := target
		wg.Add(1)
		c.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-c.sem }()
			c.dispatchAlarm(ctx, target, alarm)
		}()
	}
	wg.Wait()
}

// HandleOverflowAlarm is wired to the Dispatcher's onOverflow callback
// (§4.6): when the in-process alarm lane is full, the alarm is dispatched
// synchronously through the normal pipeline instead of being queued
// again, so it still reaches the disk queue on failure rather than
// being silently dropped.
func (c *Coordinator) HandleOverflowAlarm(ctx context.Context, alarm schema.Alarm) {
	c.HandleAlarm(ctx, alarm)
}

// ManualExport backs the MANUAL_EXPORT command (§4.6): send alarm to one
// named target regardless of its mapping/time-window filters, since an
// operator explicitly asked for this.
func (c *Coordinator) ManualExport(ctx context.Context, targetName string, alarm schema.Alarm) {
	targets, err := c.targets.FindEnabled(c.tenantID)
	if err != nil {
		log.Warnf("export: manual export: listing targets: %v", err)
		return
	}
	for _, target := range targets {
		if target.Name == targetName {
			c.dispatchAlarm(ctx, target, alarm)
			return
		}
	}
	log.Warnf("export: manual export: target %q not found or not enabled", targetName)
}

// withinIgnoreWindow reports whether alarm is older than the target's
// alarm_ignore_minutes — stale alarms replayed after a collector restart
// are dropped rather than resent (§4.9 step 2). When UseLocalTime is set
// the age is computed from local wall-clock components instead of the
// absolute instant, matching the spec's local-vs-UTC time-window filter;
// this is why a mixed-mode config can race across a DST transition, and
// that race is left uncorrected rather than papered over.
func (c *Coordinator) withinIgnoreWindow(target schema.ExportTarget, alarm schema.Alarm) bool {
	if target.AlarmIgnoreMinutes <= 0 {
		return false
	}

	now := time.Now()
	ts := time.UnixMilli(alarm.TimestampMs)

	var age time.Duration
	if target.UseLocalTime {
		age = time.Duration(wallClockMinutes(now.Local())-wallClockMinutes(ts.Local())) * time.Minute
	} else {
		age = now.UTC().Sub(ts.UTC())
	}

	return age > time.Duration(target.AlarmIgnoreMinutes)*time.Minute
}

// wallClockMinutes converts t's civil date/time components, in t's own
// Location, into a flat minute count. It ignores DST offset shifts
// between two such conversions, which is the source of the local-time
// ignore-window race noted above.
func wallClockMinutes(t time.Time) int64 {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return days*24*60 + int64(t.Hour())*60 + int64(t.Minute())
}

// resolveMapping finds the mapping row (if any) applying to pointID/
// siteID for target. A target with no mapping rows at all is a
// catch-all and matches everything (§4.2); a target whose mapping rows
// exist but none matches the event does not match.
func (c *Coordinator) resolveMapping(target schema.ExportTarget, pointID, siteID int64) (*schema.ExportTargetMapping, bool) {
	rows, err := c.mappings.FindByTarget(target.ID)
	if err != nil {
		log.Warnf("export: listing mappings for target %d: %v", target.ID, err)
		return nil, false
	}
	if len(rows) == 0 {
		return nil, true // catch-all
	}
	for i := range rows {
		if rows[i].Matches(pointID, siteID) {
			return &rows[i], true
		}
	}
	return nil, false
}
