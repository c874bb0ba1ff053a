// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import (
	"encoding/json"
	"regexp"
)

// varPattern matches a {{variable}} placeholder anywhere in a string
// leaf, including custom_vars.foo dotted names.
var varPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_.]+)\}\}`)

// Transformer renders a JSON template tree against a Context. Stateless:
// one process-wide instance is safe to share, per §4.8's "a singleton
// transforms a JSON template tree".
type Transformer struct{}

func New() *Transformer { return &Transformer{} }

// Render parses template (a JSON document) and returns the rendered
// JSON, substituting {{variable}} placeholders per ctx.
func (t *Transformer) Render(template json.RawMessage, ctx Context) (json.RawMessage, error) {
	var node interface{}
	if err := json.Unmarshal(template, &node); err != nil {
		return nil, err
	}

	rendered := t.walk(node, ctx)

	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transformer) walk(node interface{}, ctx Context) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = t.walk(val, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = t.walk(val, ctx)
		}
		return out
	case string:
		return t.substituteLeaf(v, ctx)
	default:
		return v
	}
}

// substituteLeaf applies §4.8's leaf substitution rules: a bare
// {{var}} leaf resolving to a numeric or boolean variable becomes a
// native-typed JSON leaf; otherwise the match is string-interpolated;
// unresolved variables are left as literal {{var}}.
func (t *Transformer) substituteLeaf(s string, ctx Context) interface{} {
	if m := varPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if val, ok := ctx.lookup(m[1]); ok {
			switch val.(type) {
			case int, int64, float64, bool:
				return val
			}
		}
	}

	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		val, ok := ctx.lookup(name)
		if !ok {
			return match
		}
		return stringify(val)
	})
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		s := string(b)
		if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
			var unquoted string
			_ = json.Unmarshal(b, &unquoted)
			return unquoted
		}
		return s
	}
}
