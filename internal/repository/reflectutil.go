// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import "reflect"

// dbColumns walks the `db:"..."` struct tags of entity and returns them in
// declaration order alongside their current values. Repository[T] uses
// this so a single generic save/update implementation works for every
// entity in pkg/schema without each one hand-writing an INSERT.
func dbColumns(entity interface{}) (cols []string, vals []interface{}) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return cols, vals
}

// setPKField assigns id to the struct field tagged `db:"<pkColumn>"`,
// called after an insert to populate the auto-assigned primary key.
func setPKField(entity interface{}, pkColumn string, id int64) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("db") == pkColumn {
			f := v.Field(i)
			if f.CanSet() && f.Kind() == reflect.Int64 {
				f.SetInt(id)
			}
			return
		}
	}
}

// pkValue reads the value of the struct field tagged `db:"<pkColumn>"`.
func pkValue(entity interface{}, pkColumn string) int64 {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("db") == pkColumn {
			f := v.Field(i)
			if f.Kind() == reflect.Int64 {
				return f.Int()
			}
		}
	}
	return 0
}
