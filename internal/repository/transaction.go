// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

// Transaction batches repeated inserts of the same shape into one SQL
// transaction. sqlite commits each statement to disk individually unless
// bundled like this, which makes bulk seeding (data points, mappings)
// orders of magnitude slower without it.
type Transaction struct {
	tx   *sqlx.Tx
	stmt *sqlx.NamedStmt
}

// BeginTransaction opens a transaction and prepares namedInsert (an
// `INSERT INTO ... VALUES (:field, ...)` statement matching one entity's
// db tags) against it.
func (r *Repository[T]) BeginTransaction(namedInsert string) (*Transaction, error) {
	t := new(Transaction)

	var err error
	t.tx, err = r.dal.DB.Beginx()
	if err != nil {
		log.Warn("repository: beginning transaction")
		return nil, err
	}

	t.stmt, err = t.tx.PrepareNamed(namedInsert)
	if err != nil {
		log.Warn("repository: preparing named insert")
		return nil, err
	}

	return t, nil
}

// Add executes the prepared named-insert statement against entity.
func (t *Transaction) Add(entity interface{}) error {
	if _, err := t.stmt.Exec(entity); err != nil {
		log.Errorf("repository: transaction insert: %v", err)
		return err
	}
	return nil
}

// CommitAndContinue commits t's underlying transaction and reopens a new
// one against the same database, re-binding the prepared statement.
func (r *Repository[T]) CommitAndContinue(t *Transaction) error {
	if t.tx != nil {
		if err := t.tx.Commit(); err != nil {
			log.Warn("repository: committing transaction")
			return err
		}
	}

	var err error
	t.tx, err = r.dal.DB.Beginx()
	if err != nil {
		log.Warn("repository: reopening transaction")
		return err
	}
	t.stmt = t.tx.NamedStmt(t.stmt)
	return nil
}

// End commits t's underlying transaction for the final time.
func (r *Repository[T]) End(t *Transaction) error {
	if err := t.tx.Commit(); err != nil {
		log.Warn("repository: ending transaction")
		return err
	}
	return nil
}

// Exec runs a raw statement (with positional args) inside t, for the
// handful of cases (child-row inserts during a batch seed) that don't
// fit the single prepared named-insert shape.
func (t *Transaction) Exec(query string, args ...interface{}) (int64, error) {
	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
