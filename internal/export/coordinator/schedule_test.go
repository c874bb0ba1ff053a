// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smart-guard/pulseone-core/internal/export/handler"
	"github.com/smart-guard/pulseone-core/internal/registry"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/secret"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func newScheduleTestDB(t *testing.T) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "schedule.db")
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

// TestSyncSchedulesThenRunDispatchesBatch drives syncSchedules and then
// the job body it installs: one export_schedules row with a once-a-minute
// cron expression is registered as a gocron job, and runSchedule, called
// directly for it, should pull its mapped point's cached value and deliver
// it to the target exactly as HandleValueBatch would, writing one
// export_logs row.
func TestSyncSchedulesThenRunDispatchesBatch(t *testing.T) {
	newScheduleTestDB(t)

	tenantID := rawExec(t, `INSERT INTO tenants (name) VALUES (?)`, "acme-schedule")

	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case received <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	targetID := rawExec(t, `INSERT INTO export_targets (tenant_id, name, kind, enabled, transport_config, retry_policy)
		VALUES (?, 'scheduled-http', 'HTTP', 1, ?, '{"max_retries":0}')`, tenantID, `{"endpoint":"`+srv.URL+`"}`)

	siteID := rawExec(t, `INSERT INTO sites (tenant_id, name) VALUES (?, 'plant-1')`, tenantID)
	var protocolID int64
	if err := repository.GetConnection().DB.QueryRow(`SELECT id FROM protocols WHERE protocol_type = ?`, schema.ProtocolModbusTCP).Scan(&protocolID); err != nil {
		t.Fatalf("looking up seeded protocol: %v", err)
	}
	deviceID := rawExec(t, `INSERT INTO devices (name, tenant_id, site_id, protocol_id, endpoint)
		VALUES ('dev-1', ?, ?, ?, '127.0.0.1:1')`, tenantID, siteID, protocolID)

	pointID := rawExec(t, `INSERT INTO data_points (name, device_id, address, data_type)
		VALUES ('TEMP_01', ?, 1, 'FLOAT')`, deviceID)

	rawExec(t, `INSERT INTO export_target_mappings (target_id, point_id, target_field_name)
		VALUES (?, ?, 'temp')`, targetID, pointID)

	rawExec(t, `INSERT INTO export_schedules (cron_expression, target_id, enabled)
		VALUES ('* * * * *', ?, 1)`, targetID)

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

	valueCache.Put(schema.TimestampedValue{
		PointID:     pointID,
		Value:       schema.NewFloatValue(21.5),
		TimestampMs: time.Now().UnixMilli(),
	})

	coord, err := New(targets, mappings, templates, logs, schedules, cacheMgr, valueCache, secrets, Config{
		TenantID:             tenantID,
		ExportWorkerPoolSize: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer coord.Shutdown()

	// syncSchedules already ran once inside New; call runSchedule directly
	// rather than waiting on the real minute-granularity cron trigger.
	coord.scheduleMu.Lock()
	_, scheduled := coord.scheduleJobs[1]
	coord.scheduleMu.Unlock()
	if !scheduled {
		t.Fatal("syncSchedules did not register a gocron job for the seeded schedule")
	}

	coord.runSchedule(1)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled dispatch never reached the target")
	}

	rows, err := logs.FindRecentByTarget(targetID, 1)
	if err != nil {
		t.Fatalf("FindRecentByTarget: %v", err)
	}
	if len(rows) != 1 || !rows[0].Success {
		t.Fatalf("export log = %+v, want one successful attempt", rows)
	}

	sched, err := schedules.FindByID(1)
	if err != nil {
		t.Fatalf("FindByID(1): %v", err)
	}
	if sched.LastRunAt == nil {
		t.Fatal("runSchedule did not stamp last_run_at")
	}
}
