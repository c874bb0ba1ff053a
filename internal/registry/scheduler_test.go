// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func newSchedulerTestDB(t *testing.T) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "scheduler.db")
	repository.MigrateDB("sqlite3", dsn)
	repository.Connect("sqlite3", dsn)
}

func rawExec(t *testing.T, query string, args ...interface{}) int64 {
	t.Helper()
	res, err := repository.GetConnection().DB.Exec(query, args...)
	if err != nil {
		t.Fatalf("rawExec(%q): %v", query, err)
	}
	id, _ := res.LastInsertId()
	return id
}

func newTestScheduler(t *testing.T) (*Scheduler, *Registry) {
	t.Helper()
	reg := NewRegistry()
	factory := NewFactory(repository.NewDeviceRepository(), repository.NewDeviceSettingsRepository(), repository.NewDataPointRepository(), repository.NewProtocolRepository())
	cache := NewValueCache()

	sched, err := NewScheduler(reg, factory, cache, repository.NewDeviceRepository(), repository.NewDataPointRepository(), repository.NewDeviceSettingsRepository(), 1001, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(sched.Shutdown)
	return sched, reg
}

// TestSchedulerPauseResumeRoundTrip covers Pause/Resume's thin delegation to
// the Worker primitives, and Resume's DeviceOffline->Reconnecting prior-state
// rule — neither needs a database, since both just look the Worker up by id.
func TestSchedulerPauseResumeRoundTrip(t *testing.T) {
	sched, reg := newTestScheduler(t)

	w := worker.New(schema.Device{ID: 7, Name: "dev-7"}, schema.DeviceSettings{DeviceID: 7, RetryIntervalMs: 10}, nil, &nullDriver{}, nil, nil)
	reg.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForRegistryState(t, w, worker.StateRunning, time.Second)

	if err := sched.PauseWorker(7); err != nil {
		t.Fatalf("PauseWorker: %v", err)
	}
	waitForRegistryState(t, w, worker.StatePaused, time.Second)

	if err := sched.ResumeWorker(7); err != nil {
		t.Fatalf("ResumeWorker: %v", err)
	}
	waitForRegistryState(t, w, worker.StateRunning, time.Second)

	if err := sched.PauseWorker(404); err == nil {
		t.Fatal("PauseWorker(404) on an unregistered device returned nil error")
	}

	<-w.Stop()
}

func waitForRegistryState(t *testing.T, w *worker.Worker, want worker.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w.GetState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker state = %s, want %s", w.GetState(), want)
}

// TestSchedulerRestartWorkerReusesRegisteredWorker drives RestartWorker
// against a device already registered: it should stop the existing Worker
// and start it again in place, re-seeding the ValueCache from the
// relational store along the way, rather than asking the Factory to build a
// second one.
func TestSchedulerRestartWorkerReusesRegisteredWorker(t *testing.T) {
	newSchedulerTestDB(t)
	sched, reg := newTestScheduler(t)

	tenantID := rawExec(t, `INSERT INTO tenants (name) VALUES (?)`, "acme-restart")
	siteID := rawExec(t, `INSERT INTO sites (tenant_id, name) VALUES (?, 'plant-1')`, tenantID)
	var protocolID int64
	if err := repository.GetConnection().DB.QueryRow(`SELECT id FROM protocols WHERE protocol_type = ?`, schema.ProtocolModbusTCP).Scan(&protocolID); err != nil {
		t.Fatalf("looking up seeded protocol: %v", err)
	}
	deviceID := rawExec(t, `INSERT INTO devices (name, tenant_id, site_id, protocol_id, endpoint, enabled)
		VALUES ('dev-restart', ?, ?, ?, '127.0.0.1:1', 1)`, tenantID, siteID, protocolID)
	rawExec(t, `INSERT INTO data_points (name, device_id, address, data_type, enabled)
		VALUES ('TEMP_01', ?, 1, 'FLOAT', 1)`, deviceID)

	w := worker.New(schema.Device{ID: deviceID, Name: "dev-restart"}, schema.DeviceSettings{DeviceID: deviceID, RetryIntervalMs: 10}, nil, &nullDriver{}, nil, nil)
	reg.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForRegistryState(t, w, worker.StateRunning, time.Second)

	if err := sched.RestartWorker(ctx, deviceID); err != nil {
		t.Fatalf("RestartWorker: %v", err)
	}

	if got, ok := reg.Get(deviceID); !ok || got != w {
		t.Fatal("RestartWorker replaced the registered Worker instead of reusing it")
	}
	waitForRegistryState(t, w, worker.StateRunning, time.Second)

	<-w.Stop()
}

func TestSchedulerStopAllWorkersJoinsEveryWorker(t *testing.T) {
	sched, reg := newTestScheduler(t)

	ctx := context.Background()
	workers := make([]*worker.Worker, 0, 3)
	for i := int64(1); i <= 3; i++ {
		w := worker.New(schema.Device{ID: i, Name: "dev"}, schema.DeviceSettings{DeviceID: i, RetryIntervalMs: 10}, nil, &nullDriver{}, nil, nil)
		reg.Register(w)
		if err := <-w.Start(ctx); err != nil {
			t.Fatalf("Start(%d): %v", i, err)
		}
		workers = append(workers, w)
	}
	for _, w := range workers {
		waitForRegistryState(t, w, worker.StateRunning, time.Second)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sched.StopAllWorkers(stopCtx); err != nil {
		t.Fatalf("StopAllWorkers: %v", err)
	}

	for _, w := range workers {
		waitForRegistryState(t, w, worker.StateStopped, time.Second)
	}
}
