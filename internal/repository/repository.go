// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

// Repository[T] is a dialect-neutral CRUD layer for one table, built from
// an entity's `db:"..."` struct tags via reflectutil.go instead of each
// entity hand-writing its own INSERT/UPDATE statement. Concrete
// repositories (DeviceRepository, ExportTargetRepository, ...) embed one
// of these and add entity-specific query methods on top.
type Repository[T any] struct {
	dal      *DatabaseAbstractionLayer
	table    string
	pkColumn string
	cache    *lru.Cache[int64, T]
}

// NewRepository builds a Repository[T] for table, keyed by pkColumn. A
// non-zero cacheSize enables an LRU entity cache invalidated on every
// Save/Update/DeleteById.
func NewRepository[T any](table, pkColumn string, cacheSize int) *Repository[T] {
	r := &Repository[T]{
		dal:      NewDAL(),
		table:    table,
		pkColumn: pkColumn,
	}
	if cacheSize > 0 {
		c, err := lru.New[int64, T](cacheSize)
		if err != nil {
			log.Fatalf("repository: building LRU cache for %s: %v", table, err)
		}
		r.cache = c
	}
	return r
}

// FindByID returns the row with primary key id, consulting the entity
// cache first when one is configured.
func (r *Repository[T]) FindByID(id int64) (T, error) {
	var zero T
	if r.cache != nil {
		if v, ok := r.cache.Get(id); ok {
			return v, nil
		}
	}

	var entity T
	q, args, err := sq.Select("*").From(r.table).Where(sq.Eq{r.pkColumn: id}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return zero, err
	}
	if err := r.dal.DB.Get(&entity, r.dal.DB.Rebind(q), args...); err != nil {
		return zero, err
	}

	if r.cache != nil {
		r.cache.Add(id, entity)
	}
	return entity, nil
}

// FindAll returns every row in the table, ordered by primary key.
func (r *Repository[T]) FindAll() ([]T, error) {
	var entities []T
	q, args, err := sq.Select("*").From(r.table).OrderBy(r.pkColumn).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return nil, err
	}
	if err := r.dal.DB.Select(&entities, r.dal.DB.Rebind(q), args...); err != nil {
		return nil, err
	}
	return entities, nil
}

// Page bounds a FindByConditions result set; Limit 0 means unbounded.
type Page struct {
	Limit  uint64
	Offset uint64
}

// FindByConditions runs a SELECT * filtered by the supplied squirrel
// conditions (build them with the buildXCondition helpers in query.go),
// optionally ordered and paged.
func (r *Repository[T]) FindByConditions(conds []sq.Sqlizer, orderBy string, page *Page) ([]T, error) {
	query := sq.Select("*").From(r.table).PlaceholderFormat(r.dal.placeholderFormat())
	for _, c := range conds {
		query = query.Where(c)
	}
	if orderBy != "" {
		query = query.OrderBy(orderBy)
	}
	if page != nil && page.Limit > 0 {
		query = query.Limit(page.Limit).Offset(page.Offset)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var entities []T
	if err := r.dal.DB.Select(&entities, r.dal.DB.Rebind(q), args...); err != nil {
		return nil, err
	}
	return entities, nil
}

// CountByConditions returns the row count for the same filter set
// FindByConditions would apply, without fetching the rows.
func (r *Repository[T]) CountByConditions(conds []sq.Sqlizer) (int64, error) {
	query := sq.Select("COUNT(*)").From(r.table).PlaceholderFormat(r.dal.placeholderFormat())
	for _, c := range conds {
		query = query.Where(c)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.dal.DB.Get(&count, r.dal.DB.Rebind(q), args...); err != nil {
		return 0, err
	}
	return count, nil
}

// Exists reports whether a row with the given primary key exists.
func (r *Repository[T]) Exists(id int64) (bool, error) {
	q, args, err := sq.Select("COUNT(*)").From(r.table).Where(sq.Eq{r.pkColumn: id}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return false, err
	}
	var count int
	if err := r.dal.DB.Get(&count, r.dal.DB.Rebind(q), args...); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save inserts entity, assigning the generated primary key back onto it
// via reflection (dbColumns/setPKField), and returns the assigned id.
func (r *Repository[T]) Save(entity *T) (int64, error) {
	cols, vals := dbColumns(entity)

	insertCols := make([]string, 0, len(cols))
	insertVals := make([]interface{}, 0, len(vals))
	for i, c := range cols {
		if c == r.pkColumn {
			continue
		}
		insertCols = append(insertCols, c)
		insertVals = append(insertVals, vals[i])
	}

	q, args, err := sq.Insert(r.table).Columns(insertCols...).Values(insertVals...).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.dal.DB.Exec(r.dal.DB.Rebind(q), args...)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	setPKField(entity, r.pkColumn, id)
	if r.cache != nil {
		r.cache.Add(id, *entity)
	}
	return id, nil
}

// Update overwrites every non-key column of entity's row, keyed by its
// current primary key value.
func (r *Repository[T]) Update(entity *T) error {
	cols, vals := dbColumns(entity)
	id := pkValue(entity, r.pkColumn)

	set := sq.Eq{}
	for i, c := range cols {
		if c == r.pkColumn {
			continue
		}
		set[c] = vals[i]
	}

	q, args, err := sq.Update(r.table).SetMap(set).Where(sq.Eq{r.pkColumn: id}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.dal.DB.Exec(r.dal.DB.Rebind(q), args...); err != nil {
		return err
	}

	if r.cache != nil {
		r.cache.Add(id, *entity)
	}
	return nil
}

// DeleteById removes the row with primary key id.
func (r *Repository[T]) DeleteById(id int64) error {
	q, args, err := sq.Delete(r.table).Where(sq.Eq{r.pkColumn: id}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.dal.DB.Exec(r.dal.DB.Rebind(q), args...); err != nil {
		return err
	}

	if r.cache != nil {
		r.cache.Remove(id)
	}
	return nil
}

// ClearCache drops every cached entity, used after bulk writes that
// bypass Save/Update (e.g. migrations, seed scripts).
func (r *Repository[T]) ClearCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// DB exposes the underlying *sqlx.DB for entity repositories that need a
// hand-written join or aggregate query beyond FindByConditions.
func (r *Repository[T]) DB() *sqlx.DB {
	return r.dal.DB
}

// Dialect exposes the active SQL dialect, for entity repositories that
// must branch on it directly (boolean literals, JSON functions).
func (r *Repository[T]) Dialect() string {
	return r.dal.Dialect
}

// PlaceholderFormat exposes the dialect's squirrel placeholder style, for
// entity repositories building their own queries beyond FindByConditions.
func (r *Repository[T]) PlaceholderFormat() sq.PlaceholderFormat {
	return r.dal.placeholderFormat()
}
