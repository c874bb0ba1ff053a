// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// Scheduler orchestrates bulk and per-device Worker lifecycle operations
// on top of a Registry and Factory. Exactly one Scheduler exists per
// collector process.
type Scheduler struct {
	registry    *Registry
	factory     *Factory
	cache       *ValueCache
	devices     *repository.DeviceRepository
	points      *repository.DataPointRepository
	settings    *repository.DeviceSettingsRepository
	collectorID int64
	emit        worker.OutputFunc
	alarm       worker.AlarmFunc

	cron    gocron.Scheduler
	pending sync.Map // device id -> <-chan error, futures from in-flight Stop calls
}

// NewScheduler wires a Scheduler; emit/alarm are the callbacks every
// Worker the Factory builds is given, typically the dispatcher's
// in-process ingress (C6).
func NewScheduler(reg *Registry, factory *Factory, cache *ValueCache, devices *repository.DeviceRepository, points *repository.DataPointRepository, settings *repository.DeviceSettingsRepository, collectorID int64, emit worker.OutputFunc, alarm worker.AlarmFunc) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("registry: creating gocron scheduler: %w", err)
	}

	sched := &Scheduler{
		registry:    reg,
		factory:     factory,
		cache:       cache,
		devices:     devices,
		points:      points,
		settings:    settings,
		collectorID: collectorID,
		emit:        emit,
		alarm:       alarm,
		cron:        s,
	}

	if _, err := s.NewJob(gocron.DurationJob(time.Minute), gocron.NewTask(sched.prunePendingFutures)); err != nil {
		return nil, fmt.Errorf("registry: scheduling pending-future pruning: %w", err)
	}
	s.Start()

	return sched, nil
}

// StartAllActiveWorkers enumerates devices sharded to this collector
// (edge_server_id = collectorID exactly; null or mismatching ids are
// skipped — see DESIGN.md Open Question decision) and starts each.
// Individual failures are logged and skipped rather than aborting the
// whole sweep.
func (s *Scheduler) StartAllActiveWorkers(ctx context.Context) error {
	devices, err := s.devices.FindByEdgeServer(s.collectorID, true)
	if err != nil {
		return fmt.Errorf("registry: listing devices for collector %d: %w", s.collectorID, err)
	}

	for _, d := range devices {
		if err := s.StartWorker(ctx, d.ID); err != nil {
			log.Errorf("registry: starting worker for device %d: %v", d.ID, err)
		}
	}
	return nil
}

// StartWorker builds the Worker (via the registry if one already exists)
// and starts it, seeding the value cache from the relational store
// before polling begins so no consumer sees an outright gap. A
// registered Worker that is neither Stopped nor in Error is left as it
// is and nil is returned.
func (s *Scheduler) StartWorker(ctx context.Context, deviceID int64) error {
	w, ok := s.registry.Get(deviceID)
	if ok {
		if st := w.GetState(); st != worker.StateStopped && st != worker.StateError {
			return nil
		}
	}
	if !ok {
		built, err := s.factory.Build(deviceID, s.wrapEmit, s.alarm)
		if err != nil {
			return err
		}
		w = built
		s.registry.Register(w)
	}

	points, err := s.points.FindByDevice(deviceID, true)
	if err != nil {
		return fmt.Errorf("registry: loading points to seed cache for device %d: %w", deviceID, err)
	}
	s.cache.Seed(currentValues(points))

	errCh := w.Start(ctx)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wrapEmit is every Worker's OutputFunc: it updates the value cache then
// forwards to the dispatcher-facing emit callback.
func (s *Scheduler) wrapEmit(v schema.TimestampedValue) {
	s.cache.Put(v)
	if s.emit != nil {
		s.emit(v)
	}
}

// StopAllWorkers initiates Stop on every registered Worker in parallel
// and joins all of them, bounded by ctx.
func (s *Scheduler) StopAllWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.registry.ForEach(func(w *worker.Worker) {
		g.Go(func() error {
			done := w.Stop()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	return g.Wait()
}

// ReloadWorkerSettings requeries DeviceSettings and data points for
// deviceID and pushes them into the running Worker without restarting
// its driver session — state-preserving.
func (s *Scheduler) ReloadWorkerSettings(deviceID int64) error {
	w, ok := s.registry.Get(deviceID)
	if !ok {
		return errNotFound(deviceID)
	}

	settings, err := s.settings.FindByID(deviceID)
	if err != nil {
		return fmt.Errorf("registry: reloading settings for device %d: %w", deviceID, err)
	}
	points, err := s.points.FindByDevice(deviceID, false)
	if err != nil {
		return fmt.Errorf("registry: reloading points for device %d: %w", deviceID, err)
	}

	w.ReloadSettings(settings)
	w.ReloadDataPoints(points)
	return nil
}

func (s *Scheduler) PauseWorker(deviceID int64) error {
	w, ok := s.registry.Get(deviceID)
	if !ok {
		return errNotFound(deviceID)
	}
	w.Pause()
	return nil
}

func (s *Scheduler) ResumeWorker(deviceID int64) error {
	w, ok := s.registry.Get(deviceID)
	if !ok {
		return errNotFound(deviceID)
	}
	w.Resume()
	return nil
}

// RestartWorker stops and re-starts deviceID's Worker. It waits for the
// Stop future (or ctx) before restarting; while it waits, the future is
// held in s.pending, and it stays there for the pruning sweep if ctx ends
// first.
func (s *Scheduler) RestartWorker(ctx context.Context, deviceID int64) error {
	w, ok := s.registry.Get(deviceID)
	if !ok {
		return s.StartWorker(ctx, deviceID)
	}

	done := w.Stop()
	s.pending.Store(deviceID, done)
	select {
	case err := <-done:
		if err != nil {
			log.Warnf("registry: stopping worker %d before restart: %v", deviceID, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	s.pending.Delete(deviceID)

	return s.StartWorker(ctx, deviceID)
}

// prunePendingFutures drops any stale entries left in s.pending by a
// caller that abandoned a RestartWorker/Stop future without waiting on
// it, so the map doesn't grow unbounded across process lifetime.
func (s *Scheduler) prunePendingFutures() {
	s.pending.Range(func(key, value any) bool {
		done, ok := value.(<-chan error)
		if !ok {
			s.pending.Delete(key)
			return true
		}
		select {
		case <-done:
			s.pending.Delete(key)
		default:
		}
		return true
	})
}

// Shutdown stops the pending-future pruning job. Call after
// StopAllWorkers during process teardown.
func (s *Scheduler) Shutdown() {
	_ = s.cron.Shutdown()
}
