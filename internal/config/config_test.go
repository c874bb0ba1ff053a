// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func resetKeys() {
	Keys = CollectorConfig{
		DBDriver:                "sqlite3",
		DB:                      "./var/pulseone.db",
		FailedFilePath:          "./var/failed-alarms",
		KeepFailedFilesDays:     7,
		AutoCleanupSuccessFiles: true,
		ExportWorkerPoolSize:    0,
		LogLevel:                "info",
	}
}

func TestInitMissingFileLeavesDefaults(t *testing.T) {
	resetKeys()
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))

	if Keys.DBDriver != "sqlite3" || Keys.CollectorID != 0 {
		t.Fatalf("Init with a missing config file mutated Keys: %+v", Keys)
	}
}

func TestInitValidFilePopulatesKeys(t *testing.T) {
	resetKeys()
	t.Setenv("PULSEONE_TEST_DB_PATH", "/var/lib/pulseone/run.db")

	path := filepath.Join(t.TempDir(), "collector.json")
	writeFile(t, path, `{
		"collector-id": 7,
		"tenant-id": 3,
		"db-driver": "sqlite3",
		"db": "${PULSEONE_TEST_DB_PATH}",
		"log-level": "debug"
	}`)

	Init(path)

	if Keys.CollectorID != 7 {
		t.Fatalf("Keys.CollectorID = %d, want 7", Keys.CollectorID)
	}
	if Keys.TenantID != 3 {
		t.Fatalf("Keys.TenantID = %d, want 3", Keys.TenantID)
	}
	if Keys.DB != "/var/lib/pulseone/run.db" {
		t.Fatalf("Keys.DB = %q, want the expanded env reference", Keys.DB)
	}
	if Keys.LogLevel != "debug" {
		t.Fatalf("Keys.LogLevel = %q, want %q", Keys.LogLevel, "debug")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
}
