// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

// IntRange, TimeRange, FloatRange and StringCondition are the generic
// filter primitives FindByConditions accepts, independent of which
// entity is being queried — any pkg/schema repository can build a
// []sq.Sqlizer out of these without inventing its own WHERE builder.

type IntRange struct {
	From int64
	To   int64
}

type TimeRange struct {
	From *time.Time
	To   *time.Time
}

type FloatRange struct {
	From float64
	To   float64
}

// StringCondition mirrors the handful of string comparisons the export
// and device query surfaces need; exactly one field should be set.
type StringCondition struct {
	Eq         *string
	Neq        *string
	StartsWith *string
	EndsWith   *string
	Contains   *string
	In         []string
}

func buildIntCondition(field string, cond IntRange) sq.Sqlizer {
	return sq.Expr(field+" BETWEEN ? AND ?", cond.From, cond.To)
}

func buildTimeCondition(field string, cond TimeRange) sq.Sqlizer {
	switch {
	case cond.From != nil && cond.To != nil:
		return sq.Expr(field+" BETWEEN ? AND ?", cond.From.Unix(), cond.To.Unix())
	case cond.From != nil:
		return sq.Expr(field+" >= ?", cond.From.Unix())
	case cond.To != nil:
		return sq.Expr(field+" <= ?", cond.To.Unix())
	default:
		return sq.Expr("1=1")
	}
}

func buildFloatCondition(field string, cond FloatRange) sq.Sqlizer {
	return sq.Expr(field+" BETWEEN ? AND ?", cond.From, cond.To)
}

func buildStringCondition(field string, cond StringCondition) sq.Sqlizer {
	switch {
	case cond.Eq != nil:
		return sq.Eq{field: *cond.Eq}
	case cond.Neq != nil:
		return sq.NotEq{field: *cond.Neq}
	case cond.StartsWith != nil:
		return sq.Expr(field+" LIKE ?", fmt.Sprint(*cond.StartsWith, "%"))
	case cond.EndsWith != nil:
		return sq.Expr(field+" LIKE ?", fmt.Sprint("%", *cond.EndsWith))
	case cond.Contains != nil:
		return sq.Expr(field+" LIKE ?", fmt.Sprint("%", *cond.Contains, "%"))
	case cond.In != nil:
		return sq.Eq{field: cond.In}
	default:
		return sq.Expr("1=1")
	}
}

var matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
var matchAllCap = regexp.MustCompile("([a-z0-9])([A-Z])")

// toSnakeCase converts a camelCase field name (as used in an API filter
// or order-by request) into the snake_case column name migrations use.
// Rejects quote/backslash characters outright rather than trying to
// escape them, since the result is spliced into raw SQL fragments.
func toSnakeCase(str string) string {
	for _, c := range str {
		if c == '\'' || c == '\\' {
			log.Panic("toSnakeCase() attack vector!")
		}
	}

	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
