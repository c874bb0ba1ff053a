// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/internal/export/coordinator"
	"github.com/smart-guard/pulseone-core/internal/export/handler"
	"github.com/smart-guard/pulseone-core/internal/registry"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/secret"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// TestMultiCollectorSharding is Scenario F: a device's edge_server_id
// must match the running collector's id exactly — a null or differently
// assigned device is left for its own collector, not silently adopted.
func TestMultiCollectorSharding(t *testing.T) {
	newTestDB(t)

	tenantID := insertTenant(t, "acme-sharding")
	siteID := insertSite(t, tenantID, "plant-1")
	protocolID := protocolID(t, schema.ProtocolModbusTCP)

	collector1001 := insertEdgeServer(t, tenantID, "collector-1001")
	collector1002 := insertEdgeServer(t, tenantID, "collector-1002")

	devA := insertDevice(t, tenantID, siteID, &collector1001, protocolID, "dev-a")
	devB := insertDevice(t, tenantID, siteID, &collector1001, protocolID, "dev-b")
	insertDevice(t, tenantID, siteID, &collector1002, protocolID, "dev-c")
	insertDevice(t, tenantID, siteID, nil, protocolID, "dev-unassigned")

	insertDeviceSettings(t, devA)
	insertDeviceSettings(t, devB)

	devices := repository.NewDeviceRepository()
	points := repository.NewDataPointRepository()
	settings := repository.NewDeviceSettingsRepository()
	protocols := repository.NewProtocolRepository()

	reg := registry.NewRegistry()
	cache := registry.NewValueCache()
	factory := registry.NewFactory(devices, settings, points, protocols)

	sched, err := registry.NewScheduler(reg, factory, cache, devices, points, settings, collector1001, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	defer sched.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sched.StartAllActiveWorkers(ctx); err != nil {
		t.Fatalf("StartAllActiveWorkers: %v", err)
	}
	defer sched.StopAllWorkers(context.Background())

	if got := reg.Count(); got != 2 {
		t.Fatalf("registry.Count() = %d, want 2", got)
	}
	if _, ok := reg.Get(devA); !ok {
		t.Error("device assigned to this collector missing from registry")
	}
	if _, ok := reg.Get(devB); !ok {
		t.Error("device assigned to this collector missing from registry")
	}
}

// TestExportTargetIsolation is Scenario E: one target failing (or being
// slow) never affects another target's delivery of the same alarm.
func TestExportTargetIsolation(t *testing.T) {
	newTestDB(t)

	tenantID := insertTenant(t, "acme-export")

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	t1 := insertExportTarget(t, tenantID, "t1-healthy", healthy.URL, `{"max_retries":0}`)
	insertExportTarget(t, tenantID, "t2-unreachable", "http://127.0.0.1:1/", `{"max_retries":0}`)

	targets := repository.NewExportTargetRepository()
	mappings := repository.NewExportTargetMappingRepository()
	templates := repository.NewPayloadTemplateRepository()
	logs := repository.NewExportLogRepository()
	schedules := repository.NewExportScheduleRepository()
	cacheMgr := handler.NewClientCacheManager(8, 60)
	valueCache := registry.NewValueCache()
	secrets, err := secret.New(nil, nil)
	if err != nil {
		t.Fatalf("secret.New: %v", err)
	}

	coord, err := coordinator.New(targets, mappings, templates, logs, schedules, cacheMgr, valueCache, secrets, coordinator.Config{
		TenantID:             tenantID,
		ExportWorkerPoolSize: 4,
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	defer coord.Shutdown()

	alarm := schema.Alarm{
		SiteID:        1,
		PointID:       1,
		PointName:     "TEMP_01",
		MeasuredValue: schema.NewFloatValue(25.5),
		AlarmFlag:     true,
		Status:        "alert",
		TimestampMs:   time.Now().UnixMilli(),
	}

	start := time.Now()
	coord.HandleAlarm(context.Background(), alarm)
	elapsed := time.Since(start)
	if elapsed > 3*time.Second {
		t.Fatalf("HandleAlarm took %s, want the unreachable target's failure to not stall the healthy one", elapsed)
	}

	t1Logs, err := logs.FindRecentByTarget(t1, 1)
	if err != nil {
		t.Fatalf("FindRecentByTarget(t1): %v", err)
	}
	if len(t1Logs) != 1 || !t1Logs[0].Success {
		t.Fatalf("t1 export log = %+v, want one successful attempt", t1Logs)
	}
}

func insertTenant(t *testing.T, name string) int64 {
	t.Helper()
	res := rawExec(t, `INSERT INTO tenants (name) VALUES (?)`, name)
	id, _ := res.LastInsertId()
	return id
}

func insertSite(t *testing.T, tenantID int64, name string) int64 {
	t.Helper()
	res := rawExec(t, `INSERT INTO sites (tenant_id, name) VALUES (?, ?)`, tenantID, name)
	id, _ := res.LastInsertId()
	return id
}

func insertEdgeServer(t *testing.T, tenantID int64, name string) int64 {
	t.Helper()
	res := rawExec(t, `INSERT INTO edge_servers (tenant_id, name) VALUES (?, ?)`, tenantID, name)
	id, _ := res.LastInsertId()
	return id
}

func protocolID(t *testing.T, protocolType string) int64 {
	t.Helper()
	row := repository.GetConnection().DB.QueryRow(`SELECT id FROM protocols WHERE protocol_type = ?`, protocolType)
	var id int64
	if err := row.Scan(&id); err != nil {
		t.Fatalf("looking up seeded protocol %s: %v", protocolType, err)
	}
	return id
}

func insertDevice(t *testing.T, tenantID, siteID int64, edgeServerID *int64, protocolID int64, name string) int64 {
	t.Helper()
	res := rawExec(t, `INSERT INTO devices (name, tenant_id, site_id, edge_server_id, protocol_id, endpoint, enabled)
		VALUES (?, ?, ?, ?, ?, ?, 1)`, name, tenantID, siteID, edgeServerID, protocolID, "127.0.0.1:1")
	id, _ := res.LastInsertId()
	return id
}

func insertDeviceSettings(t *testing.T, deviceID int64) {
	t.Helper()
	rawExec(t, `INSERT INTO device_settings (device_id, retry_interval_ms, backoff_multiplier, max_backoff_time_ms)
		VALUES (?, 1000, 1.5, 5000)`, deviceID)
}

func insertExportTarget(t *testing.T, tenantID int64, name, endpointURL, retryPolicyJSON string) int64 {
	t.Helper()
	transportConfig := `{"endpoint":"` + endpointURL + `"}`
	res := rawExec(t, `INSERT INTO export_targets (tenant_id, name, kind, enabled, transport_config, retry_policy)
		VALUES (?, ?, 'HTTP', 1, ?, ?)`, tenantID, name, transportConfig, retryPolicyJSON)
	id, _ := res.LastInsertId()
	return id
}
