// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvInJSON walks every string leaf of a JSON document and expands
// "${VAR}" references against the process environment, per spec §6's
// configuration discipline. Secret references ("${SECRET:key}") are left
// untouched here — they are a distinct syntax resolved later by
// internal/secret, not an environment variable.
func expandEnvInJSON(raw []byte) (io.Reader, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}

	expanded := expandValue(v)

	out, err := json.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling expanded config: %w", err)
	}
	return bytes.NewReader(out), nil
}

func expandValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return expandString(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = expandValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = expandValue(val)
		}
		return out
	default:
		return v
	}
}

// expandString expands "${VAR}" references. The pattern requires a bare
// identifier between the braces, so it never matches "${SECRET:key}" —
// that syntax has a colon and is left for internal/secret to resolve.
func expandString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
