// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package test holds end-to-end tests exercising the collector's
// component wiring against a real sqlite-backed repository layer,
// distinct from the per-package unit tests living alongside their code.
package test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smart-guard/pulseone-core/internal/repository"
)

// newTestDB migrates a fresh sqlite file under t.TempDir() and connects
// the process-wide repository singleton to it. repository.Connect is a
// sync.Once, so only the first call in a test binary run actually takes
// effect — fine here since every test in this package wants the same
// schema.
func newTestDB(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	repository.MigrateDB("sqlite3", dsn)
	repository.Connect("sqlite3", dsn)
	return dsn
}

// rawExec runs a DDL/DML statement directly against the migrated schema,
// for fixture rows whose primary key is a meaningful foreign key
// (device_settings.device_id) rather than an autoincrement surrogate —
// Repository[T].Save always omits the primary-key column from its INSERT,
// so it only ever works for autoincrement tables.
func rawExec(t *testing.T, query string, args ...interface{}) sql.Result {
	t.Helper()
	res, err := repository.GetConnection().DB.Exec(query, args...)
	if err != nil {
		t.Fatalf("rawExec(%q): %v", query, err)
	}
	return res
}
