// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transform implements the Payload Transformer (C8): a single
// recursive substitution pass over a JSON template tree, driven by a
// flat variable table built from one alarm (or value) event.
package transform

import (
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// Context is the variable table a template is rendered against, per
// §4.8's variable list.
type Context struct {
	BuildingID      int64
	SiteID          int64
	PointID         int64
	PointName       string
	Description     string
	Value           schema.Value
	AlarmFlag       bool
	Status          string
	AlarmStatus     string
	TimestampISO    string
	TimestampUnixMs int64
	Year, Month, Day, Hour, Minute, Second int
	Date            string
	TargetFieldName string
	TargetDesc      string
	ConvertedValue  interface{}
	CustomVars      map[string]interface{}
}

// NewAlarmContext builds a Context from an Alarm, optionally narrowed by
// a matching ExportTargetMapping (nil for a catch-all mapping).
func NewAlarmContext(alarm schema.Alarm, mapping *schema.ExportTargetMapping, customVars map[string]interface{}) Context {
	ts := time.UnixMilli(alarm.TimestampMs).UTC()

	ctx := Context{
		BuildingID:      alarm.SiteID,
		SiteID:          alarm.SiteID,
		PointID:         alarm.PointID,
		PointName:       alarm.PointName,
		Description:     alarm.Description,
		Value:           alarm.MeasuredValue,
		AlarmFlag:       alarm.AlarmFlag,
		Status:          alarm.Status,
		AlarmStatus:     alarm.AlarmStatus(),
		TimestampISO:    ts.Format(time.RFC3339),
		TimestampUnixMs: alarm.TimestampMs,
		Year:            ts.Year(),
		Month:           int(ts.Month()),
		Day:             ts.Day(),
		Hour:            ts.Hour(),
		Minute:          ts.Minute(),
		Second:          ts.Second(),
		Date:            ts.Format("2006-01-02"),
		ConvertedValue:  alarm.MeasuredValue.Native(),
		CustomVars:      customVars,
	}

	if mapping != nil {
		ctx.TargetFieldName = mapping.TargetFieldName
	}
	return ctx
}

// lookup resolves a {{variable}} name to its value and whether it was
// found. custom_vars.foo reaches into CustomVars.
func (c Context) lookup(name string) (interface{}, bool) {
	switch name {
	case "building_id":
		return c.BuildingID, true
	case "site_id":
		return c.SiteID, true
	case "point_id":
		return c.PointID, true
	case "point_name":
		return c.PointName, true
	case "description":
		return c.Description, true
	case "value":
		return c.Value.Native(), true
	case "alarm_flag":
		return c.AlarmFlag, true
	case "status":
		return c.Status, true
	case "alarm_status":
		return c.AlarmStatus, true
	case "timestamp_iso8601":
		return c.TimestampISO, true
	case "timestamp_unix_ms":
		return c.TimestampUnixMs, true
	case "year":
		return c.Year, true
	case "month":
		return c.Month, true
	case "day":
		return c.Day, true
	case "hour":
		return c.Hour, true
	case "minute":
		return c.Minute, true
	case "second":
		return c.Second, true
	case "date":
		return c.Date, true
	case "target_field_name":
		return c.TargetFieldName, true
	case "target_description":
		return c.TargetDesc, true
	case "converted_value":
		return c.ConvertedValue, true
	default:
		if len(name) > len("custom_vars.") && name[:len("custom_vars.")] == "custom_vars." {
			v, ok := c.CustomVars[name[len("custom_vars."):]]
			return v, ok
		}
		return nil, false
	}
}
