// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"os"
	"time"

	"github.com/smart-guard/pulseone-core/internal/config"
	"github.com/smart-guard/pulseone-core/internal/dispatch"
	"github.com/smart-guard/pulseone-core/internal/export/coordinator"
	"github.com/smart-guard/pulseone-core/internal/export/handler"
	"github.com/smart-guard/pulseone-core/internal/registry"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/secret"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/nats"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// stuckWorkerThreshold is how long a Worker may sit in Reconnecting or
// Error before the health sweep (SUPPLEMENTED FEATURES #2) logs it.
const stuckWorkerThreshold = 5 * time.Minute

// app holds every boot-sequence component a running collector needs, so
// main can build it once and pass it to whichever mode (daemon,
// interactive, test) the CLI flags select.
type app struct {
	devices   *repository.DeviceRepository
	points    *repository.DataPointRepository
	settings  *repository.DeviceSettingsRepository
	protocols *repository.ProtocolRepository

	targets   *repository.ExportTargetRepository
	mappings  *repository.ExportTargetMappingRepository
	templates *repository.PayloadTemplateRepository
	logs      *repository.ExportLogRepository
	schedules *repository.ExportScheduleRepository

	cache   *handler.ClientCacheManager
	secrets *secret.Manager

	registry   *registry.Registry
	valueCache *registry.ValueCache
	factory    *registry.Factory
	scheduler  *registry.Scheduler
	monitor    *registry.Monitor

	dispatcher *dispatch.Dispatcher
	router     *dispatch.Router

	coordinator *coordinator.Coordinator
}

// buildApp wires every component named in SPEC_FULL's REPOSITORY LAYOUT
// into a ready-to-run app, in the dependency order the teacher's main.go
// follows: repositories first, then the secret manager and handler
// cache, then the registry/scheduler, then the dispatcher and export
// coordinator, and finally the pub/sub router that ties remote commands
// back into the dispatcher.
func buildApp() (*app, error) {
	a := &app{
		devices:   repository.NewDeviceRepository(),
		points:    repository.NewDataPointRepository(),
		settings:  repository.NewDeviceSettingsRepository(),
		protocols: repository.NewProtocolRepository(),
		targets:   repository.NewExportTargetRepository(),
		mappings:  repository.NewExportTargetMappingRepository(),
		templates: repository.NewPayloadTemplateRepository(),
		logs:      repository.NewExportLogRepository(),
		schedules: repository.NewExportScheduleRepository(),
	}

	var masterKey []byte
	if env := config.Keys.SecretMasterKeyEnv; env != "" {
		if v := os.Getenv(env); v != "" {
			masterKey = []byte(v)
		}
	}
	secrets, err := secret.New(masterKey, nil)
	if err != nil {
		return nil, err
	}
	a.secrets = secrets

	a.cache = handler.NewClientCacheManager(64, 300)

	a.registry = registry.NewRegistry()
	a.valueCache = registry.NewValueCache()
	a.factory = registry.NewFactory(a.devices, a.settings, a.points, a.protocols)

	coord, err := coordinator.New(a.targets, a.mappings, a.templates, a.logs, a.schedules, a.cache, a.valueCache, a.secrets, coordinator.Config{
		TenantID:                config.Keys.TenantID,
		FailedFilePath:          config.Keys.FailedFilePath,
		KeepFailedFilesDays:     config.Keys.KeepFailedFilesDays,
		AutoCleanupSuccessFiles: config.Keys.AutoCleanupSuccessFiles,
		ExportWorkerPoolSize:    config.Keys.ExportWorkerPoolSize,
	})
	if err != nil {
		return nil, err
	}
	a.coordinator = coord

	a.dispatcher = dispatch.NewDispatcher(
		func(v schema.TimestampedValue) { a.coordinator.HandleValueBatch(context.Background(), []schema.TimestampedValue{v}) },
		func(al schema.Alarm) { a.coordinator.HandleAlarm(context.Background(), al) },
		func(al schema.Alarm) { a.coordinator.HandleOverflowAlarm(context.Background(), al) },
	)

	scheduler, err := registry.NewScheduler(a.registry, a.factory, a.valueCache, a.devices, a.points, a.settings,
		config.Keys.CollectorID, a.dispatcher.PushValue, a.dispatcher.PushAlarm)
	if err != nil {
		return nil, err
	}
	a.scheduler = scheduler

	monitor, err := registry.NewMonitor(a.registry, stuckWorkerThreshold)
	if err != nil {
		return nil, err
	}
	a.monitor = monitor

	if config.Keys.Nats.Address != "" {
		client, err := nats.NewClient(&config.Keys.Nats)
		if err != nil {
			log.Warnf("collector: nats connection failed, running without remote pub/sub: %v", err)
		} else {
			a.router = dispatch.NewRouter(client, config.Keys.CollectorID, a.dispatcher, a.reloadFromDatabase,
				func(targetName string, alarm schema.Alarm) {
					a.coordinator.ManualExport(context.Background(), targetName, alarm)
				})
		}
	} else {
		log.Warn("collector: no nats address configured, remote command/reload channels are disabled")
	}

	return a, nil
}

// reloadFromDatabase re-syncs active workers against the relational
// store — the Router's onReload callback for config.*/target.*/
// schedule.* events. StartWorker is a no-op for a device whose Worker is
// already registered and neither Stopped nor in Error, so this only
// picks up newly enabled or reassigned devices and restarts stopped ones;
// a device's settings/points changes are picked up by
// ReloadWorkerSettings instead (§4.6).
func (a *app) reloadFromDatabase() {
	if err := a.scheduler.StartAllActiveWorkers(context.Background()); err != nil {
		log.Errorf("collector: reload from database: %v", err)
	}
}

// Run starts every background component and blocks until ctx is
// cancelled, then tears them down in reverse dependency order.
func (a *app) Run(ctx context.Context) error {
	if err := a.scheduler.StartAllActiveWorkers(ctx); err != nil {
		log.Errorf("collector: starting active workers: %v", err)
	}
	a.monitor.Start()

	go a.dispatcher.Run(ctx)

	if a.router != nil {
		if err := a.router.Start(); err != nil {
			log.Errorf("collector: starting pub/sub router: %v", err)
		}
	}

	<-ctx.Done()
	return a.Shutdown()
}

// Shutdown stops every background component in reverse dependency order.
func (a *app) Shutdown() error {
	a.monitor.Stop()
	if err := a.scheduler.StopAllWorkers(context.Background()); err != nil {
		log.Warnf("collector: stopping workers: %v", err)
	}
	a.scheduler.Shutdown()
	return a.coordinator.Shutdown()
}
