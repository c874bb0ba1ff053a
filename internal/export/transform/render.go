// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import (
	"encoding/json"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// RenderAlarm renders an alarm payload for one target, applying the
// manual-override bypass: an alarm with ManualOverride=true skips the
// transformer entirely and sends ExtraInfo verbatim, a zero-transformation
// contract for operator-authored payloads (§4.8).
func (t *Transformer) RenderAlarm(alarm schema.Alarm, mapping *schema.ExportTargetMapping, template json.RawMessage, customVars map[string]interface{}) (json.RawMessage, error) {
	if alarm.ManualOverride {
		return alarm.ExtraInfo, nil
	}

	ctx := NewAlarmContext(alarm, mapping, customVars)
	return t.Render(template, ctx)
}
