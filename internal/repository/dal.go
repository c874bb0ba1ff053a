// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository implements the Database Abstraction Layer (DAL) and
// the generic Repository[T] on top of it, per the "repository layer"
// component: every entity repository goes through here rather than
// embedding dialect-specific SQL.
package repository

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// DatabaseAbstractionLayer hides dialect differences (boolean literals,
// autoincrement/UPSERT syntax, timestamp function, LIMIT/OFFSET) behind a
// small set of dialect-aware helpers, so repositories never embed
// dialect-specific INSERT...ON CONFLICT or NOW() text.
type DatabaseAbstractionLayer struct {
	DB      *sqlx.DB
	Dialect string
}

// NewDAL builds a DatabaseAbstractionLayer over the process-wide
// connection opened by Connect.
func NewDAL() *DatabaseAbstractionLayer {
	conn := GetConnection()
	return &DatabaseAbstractionLayer{DB: conn.DB, Dialect: conn.Dialect}
}

// placeholderFormat returns the squirrel placeholder style for this
// dialect: "?" for sqlite3/mysql/mssql, "$1..$n" for postgres.
func (d *DatabaseAbstractionLayer) placeholderFormat() sq.PlaceholderFormat {
	if d.Dialect == "postgres" {
		return sq.Dollar
	}
	return sq.Question
}

// StatementBuilder returns a squirrel StatementBuilderType bound to this
// dialect's placeholder style and running queries against this DB.
func (d *DatabaseAbstractionLayer) StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholderFormat()).RunWith(d.DB)
}

// NowFunc returns the dialect's current-timestamp SQL function, for
// callers building raw fragments (e.g. ORDER BY / DEFAULT expressions)
// that can't go through squirrel args.
func (d *DatabaseAbstractionLayer) NowFunc() string {
	switch d.Dialect {
	case "mysql":
		return "NOW()"
	case "postgres":
		return "now()"
	case "mssql":
		return "SYSUTCDATETIME()"
	default: // sqlite3
		return "datetime('now')"
	}
}

// BoolLiteral renders a boolean as the dialect's native literal, for raw
// SQL fragments outside squirrel's parameterized values.
func (d *DatabaseAbstractionLayer) BoolLiteral(v bool) string {
	switch d.Dialect {
	case "mssql":
		if v {
			return "1"
		}
		return "0"
	default:
		if v {
			return "true"
		}
		return "false"
	}
}

// LimitOffset appends LIMIT/OFFSET to a squirrel SelectBuilder. MSSQL
// before SQL Server 2012 needs TOP/OFFSET-FETCH instead, but every
// dialect golang-migrate supports here accepts standard LIMIT/OFFSET via
// squirrel's own .Limit()/.Offset(), so this only documents the contract
// repositories rely on — call .Limit(n).Offset(o) directly.
func (d *DatabaseAbstractionLayer) LimitOffset(q sq.SelectBuilder, limit, offset uint64) sq.SelectBuilder {
	return q.Limit(limit).Offset(offset)
}

// ExecuteUpsert performs a dialect-appropriate UPSERT of one row: insert
// cols/vals, or on a primary-key conflict update every non-key column.
// This is the single place INSERT...ON CONFLICT / ON DUPLICATE KEY /
// MERGE text is allowed to exist.
func (d *DatabaseAbstractionLayer) ExecuteUpsert(table string, cols map[string]interface{}, primaryKeys []string) (int64, error) {
	colNames := make([]string, 0, len(cols))
	vals := make([]interface{}, 0, len(cols))
	for c, v := range cols {
		colNames = append(colNames, c)
		vals = append(vals, v)
	}

	placeholders := make([]string, len(colNames))
	for i := range colNames {
		placeholders[i] = "?"
	}

	var query string
	switch d.Dialect {
	case "mysql":
		updates := make([]string, 0, len(colNames))
		for _, c := range colNames {
			if !contains(primaryKeys, c) {
				updates = append(updates, fmt.Sprintf("%s=VALUES(%s)", c, c))
			}
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			table, strings.Join(colNames, ","), strings.Join(placeholders, ","), strings.Join(updates, ","))

	case "postgres":
		updates := make([]string, 0, len(colNames))
		for _, c := range colNames {
			if !contains(primaryKeys, c) {
				updates = append(updates, fmt.Sprintf("%s=EXCLUDED.%s", c, c))
			}
		}
		pgPlaceholders := make([]string, len(colNames))
		for i := range colNames {
			pgPlaceholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, strings.Join(colNames, ","), strings.Join(pgPlaceholders, ","), strings.Join(primaryKeys, ","), strings.Join(updates, ","))

	case "mssql":
		// Plain INSERT with a preceding existence check; MSSQL's MERGE
		// syntax is verbose enough that a round-trip is simpler here and
		// upserts are not on the hot path (config tables only).
		return d.mssqlUpsert(table, colNames, vals, primaryKeys)

	default: // sqlite3
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, strings.Join(colNames, ","), strings.Join(placeholders, ","), strings.Join(primaryKeys, ","),
			sqliteUpdateClause(colNames, primaryKeys))
	}

	res, err := d.DB.Exec(d.DB.Rebind(query), vals...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func sqliteUpdateClause(cols, pks []string) string {
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		if !contains(pks, c) {
			updates = append(updates, fmt.Sprintf("%s=excluded.%s", c, c))
		}
	}
	return strings.Join(updates, ",")
}

func (d *DatabaseAbstractionLayer) mssqlUpsert(table string, cols []string, vals []interface{}, primaryKeys []string) (int64, error) {
	pkIdx := map[string]interface{}{}
	for i, c := range cols {
		if contains(primaryKeys, c) {
			pkIdx[c] = vals[i]
		}
	}

	where := sq.Eq{}
	for k, v := range pkIdx {
		where[k] = v
	}
	var exists int
	q, args, _ := sq.Select("COUNT(*)").From(table).Where(where).ToSql()
	if err := d.DB.QueryRow(d.DB.Rebind(q), args...).Scan(&exists); err != nil {
		return 0, err
	}

	if exists > 0 {
		setClauses := sq.Eq{}
		for i, c := range cols {
			if !contains(primaryKeys, c) {
				setClauses[c] = vals[i]
			}
		}
		uq, uargs, _ := sq.Update(table).SetMap(setClauses).Where(where).ToSql()
		if _, err := d.DB.Exec(d.DB.Rebind(uq), uargs...); err != nil {
			return 0, err
		}
		if len(primaryKeys) == 1 {
			if id, ok := pkIdx[primaryKeys[0]].(int64); ok {
				return id, nil
			}
		}
		return 0, nil
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	iq := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), strings.Join(placeholders, ","))
	res, err := d.DB.Exec(d.DB.Rebind(iq), vals...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
