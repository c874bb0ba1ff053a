// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the process-wide *sqlx.DB plus the dialect name it
// was opened with, so the DatabaseAbstractionLayer can branch on it
// without threading the driver string through every call site.
type DBConnection struct {
	DB      *sqlx.DB
	Dialect string
}

// Connect opens the process-wide database connection for one of the four
// supported dialects and runs the schema version check. Subsequent calls
// are no-ops (the connection is a singleton, matching the teacher's
// sync.Once pattern).
func Connect(driver string, dsn string) {
	var err error
	var dbHandle *sqlx.DB

	dbConnOnce.Do(func() {
		cfg := GetConfig()

		switch driver {
		case "sqlite3":
			sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
			dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
			if err != nil {
				log.Fatal(err)
			}
			// sqlite does not multithread; more than one connection just
			// means waiting on the same file lock.
			dbHandle.SetMaxOpenConns(1)

		case "mysql":
			dbHandle, err = sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true", dsn))
			if err != nil {
				log.Fatalf("sqlx.Open() error: %v", err)
			}
			dbHandle.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
			dbHandle.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
			dbHandle.SetMaxOpenConns(cfg.MaxOpenConnections)
			dbHandle.SetMaxIdleConns(cfg.MaxIdleConnections)

		case "postgres":
			dbHandle, err = sqlx.Open("postgres", dsn)
			if err != nil {
				log.Fatalf("sqlx.Open() error: %v", err)
			}
			dbHandle.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
			dbHandle.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
			dbHandle.SetMaxOpenConns(cfg.MaxOpenConnections)
			dbHandle.SetMaxIdleConns(cfg.MaxIdleConnections)

		case "mssql":
			dbHandle, err = sqlx.Open("sqlserver", dsn)
			if err != nil {
				log.Fatalf("sqlx.Open() error: %v", err)
			}
			dbHandle.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
			dbHandle.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
			dbHandle.SetMaxOpenConns(cfg.MaxOpenConnections)
			dbHandle.SetMaxIdleConns(cfg.MaxIdleConnections)

		default:
			log.Fatalf("unsupported database driver: %s", driver)
		}

		dbConnInstance = &DBConnection{DB: dbHandle, Dialect: driver}
		checkDBVersion(driver, dbHandle.DB)
	})
}

// GetConnection returns the singleton connection, panicking via Fatal if
// Connect was never called — every call site runs after boot.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("Database connection not initialized!")
	}

	return dbConnInstance
}
