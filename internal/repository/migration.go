// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smart-guard/pulseone-core/pkg/log"
)

// supportedVersion is the schema version this build of the collector
// expects. Bumped whenever a migration adds or renames a table the
// repository layer depends on.
const supportedVersion uint = 2

//go:embed migrations/*
var migrationFiles embed.FS

// dialectDriver builds the golang-migrate database.Driver for one of the
// four supported dialects, hiding the per-driver WithInstance call behind
// a single switch so callers never need dialect-specific code.
func dialectDriver(backend string, db *sql.DB) (migrate.Driver, error) {
	switch backend {
	case "sqlite3":
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{})
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{})
	case "mssql":
		return sqlserver.WithInstance(db, &sqlserver.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", backend)
	}
}

func checkDBVersion(backend string, db *sql.DB) {
	driver, err := dialectDriver(backend, db)
	if err != nil {
		log.Fatal(err)
	}

	d, err := iofs.New(migrationFiles, "migrations/"+backend)
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithInstance("iofs", d, backend, driver)
	if err != nil {
		log.Fatal(err)
	}

	v, _, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			log.Warn("Database has no schema version yet, run with --migrate-db first.")
			return
		}
		log.Fatal(err)
	}

	if v < supportedVersion {
		log.Warnf("Unsupported database version %d, need %d. Run the collector with --migrate-db.", v, supportedVersion)
		os.Exit(0)
	}

	if v > supportedVersion {
		log.Warnf("Database version %d is newer than this binary supports (%d). Refusing to start.", v, supportedVersion)
		os.Exit(0)
	}
}

// MigrateDB runs all pending up migrations for backend against db (a DSN
// or file path, dialect-dependent), used by the --migrate-db CLI flag.
func MigrateDB(backend string, db string) {
	d, err := iofs.New(migrationFiles, "migrations/"+backend)
	if err != nil {
		log.Fatal(err)
	}

	var sourceURL string
	switch backend {
	case "sqlite3":
		sourceURL = fmt.Sprintf("sqlite3://%s?_foreign_keys=on", db)
	case "mysql":
		sourceURL = fmt.Sprintf("mysql://%s?multiStatements=true", db)
	case "postgres":
		sourceURL = fmt.Sprintf("postgres://%s", db)
	case "mssql":
		sourceURL = fmt.Sprintf("sqlserver://%s", db)
	default:
		log.Fatalf("unsupported database driver: %s", backend)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, sourceURL)
	if err != nil {
		log.Fatal(err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal(err)
	}

	m.Close()
}
