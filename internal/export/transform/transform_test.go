// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestRenderAlarmTemplate(t *testing.T) {
	template := json.RawMessage(`{"building":"{{building_id}}","point":"{{point_name}}","value":"{{value}}"}`)
	alarm := schema.Alarm{
		SiteID:        1001,
		PointName:     "TEMP_01",
		MeasuredValue: schema.NewFloatValue(25.5),
	}

	tr := New()
	out, err := tr.RenderAlarm(alarm, nil, template, nil)
	if err != nil {
		t.Fatalf("RenderAlarm: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal rendered payload: %v", err)
	}

	want := map[string]interface{}{
		"building": float64(1001),
		"point":    "TEMP_01",
		"value":    25.5,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rendered payload = %#v, want %#v", got, want)
	}
}

func TestRenderAlarmManualOverride(t *testing.T) {
	extra := json.RawMessage(`{"x":1,"y":[true,null]}`)
	alarm := schema.Alarm{
		ManualOverride: true,
		ExtraInfo:      extra,
	}

	tr := New()
	out, err := tr.RenderAlarm(alarm, nil, json.RawMessage(`{"ignored":"{{point_name}}"}`), nil)
	if err != nil {
		t.Fatalf("RenderAlarm: %v", err)
	}
	if string(out) != string(extra) {
		t.Fatalf("manual override body = %s, want %s", out, extra)
	}
}

func TestSubstituteLeafUnresolvedVariableLeftLiteral(t *testing.T) {
	tr := New()
	ctx := Context{}
	template := json.RawMessage(`{"missing":"{{does_not_exist}}"}`)
	out, err := tr.Render(template, ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["missing"] != "{{does_not_exist}}" {
		t.Fatalf("missing = %q, want literal placeholder", got["missing"])
	}
}

func TestSubstituteLeafMixedStringInterpolation(t *testing.T) {
	tr := New()
	ctx := Context{PointName: "TEMP_01", Value: schema.NewFloatValue(25.5)}
	template := json.RawMessage(`{"label":"{{point_name}}={{value}}"}`)
	out, err := tr.Render(template, ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["label"] != "TEMP_01=25.5" {
		t.Fatalf("label = %q, want TEMP_01=25.5", got["label"])
	}
}

func TestNewAlarmContextCustomVars(t *testing.T) {
	alarm := schema.Alarm{PointName: "P1"}
	ctx := NewAlarmContext(alarm, nil, map[string]interface{}{"zone": "north"})
	v, ok := ctx.lookup("custom_vars.zone")
	if !ok || v != "north" {
		t.Fatalf("custom_vars.zone = %v, %v, want north, true", v, ok)
	}
	if _, ok := ctx.lookup("custom_vars.missing"); ok {
		t.Fatal("custom_vars.missing should not resolve")
	}
}
