// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"io"
	"testing"
)

func TestExpandEnvInJSONExpandsNestedStrings(t *testing.T) {
	t.Setenv("PULSEONE_TEST_HOST", "db.internal")
	t.Setenv("PULSEONE_TEST_PORT", "5432")

	raw := []byte(`{
		"db": "postgres://${PULSEONE_TEST_HOST}:${PULSEONE_TEST_PORT}/app",
		"nested": {"list": ["${PULSEONE_TEST_HOST}", "literal"]},
		"count": 3,
		"enabled": true
	}`)

	r, err := expandEnvInJSON(raw)
	if err != nil {
		t.Fatalf("expandEnvInJSON: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading expanded output: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshaling expanded output: %v", err)
	}

	if decoded["db"] != "postgres://db.internal:5432/app" {
		t.Fatalf("db = %v, want expanded host/port", decoded["db"])
	}
	nested := decoded["nested"].(map[string]interface{})
	list := nested["list"].([]interface{})
	if list[0] != "db.internal" || list[1] != "literal" {
		t.Fatalf("nested.list = %v, want [db.internal literal]", list)
	}
	if decoded["count"] != float64(3) || decoded["enabled"] != true {
		t.Fatalf("non-string leaves were altered: count=%v enabled=%v", decoded["count"], decoded["enabled"])
	}
}

func TestExpandStringLeavesUndefinedReferenceUntouched(t *testing.T) {
	got := expandString("${PULSEONE_TEST_DEFINITELY_UNSET}")
	if got != "${PULSEONE_TEST_DEFINITELY_UNSET}" {
		t.Fatalf("expandString(undefined) = %q, want the reference left as-is", got)
	}
}

func TestExpandStringNeverMatchesSecretSyntax(t *testing.T) {
	t.Setenv("SECRET", "should-not-appear")
	got := expandString("${SECRET:db.password}")
	if got != "${SECRET:db.password}" {
		t.Fatalf("expandString matched a ${SECRET:key} reference: %q", got)
	}
}
