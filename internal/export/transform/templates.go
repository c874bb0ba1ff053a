// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transform

import "encoding/json"

// DefaultTemplate returns the shipped reference template for category,
// per §4.8: these are design-level presets, not special-cased code —
// each flows through the same Render() as a USER template would.
func DefaultTemplate(category string) json.RawMessage {
	switch category {
	case "INSITE":
		return insiteDefaultTemplate()
	case "HDC":
		return hdcDefaultTemplate()
	case "BEMS":
		return bemsDefaultTemplate()
	default:
		return genericDefaultTemplate()
	}
}

func insiteDefaultTemplate() json.RawMessage {
	return json.RawMessage(`{
		"buildingId": "{{building_id}}",
		"pointId": "{{point_name}}",
		"value": "{{value}}",
		"alarmStatus": "{{alarm_status}}",
		"timestamp": "{{timestamp_iso8601}}"
	}`)
}

func hdcDefaultTemplate() json.RawMessage {
	return json.RawMessage(`{
		"site": "{{site_id}}",
		"tag": "{{point_name}}",
		"description": "{{description}}",
		"val": "{{value}}",
		"flag": "{{alarm_flag}}",
		"ts_ms": "{{timestamp_unix_ms}}"
	}`)
}

func bemsDefaultTemplate() json.RawMessage {
	return json.RawMessage(`{
		"BuildingID": "{{building_id}}",
		"PointName": "{{point_name}}",
		"Value": "{{value}}",
		"Status": "{{status}}",
		"Date": "{{date}}",
		"Hour": "{{hour}}",
		"Minute": "{{minute}}"
	}`)
}

func genericDefaultTemplate() json.RawMessage {
	return json.RawMessage(`{
		"point_id": "{{point_id}}",
		"point_name": "{{point_name}}",
		"value": "{{value}}",
		"alarm_status": "{{alarm_status}}",
		"timestamp_iso8601": "{{timestamp_iso8601}}",
		"custom": "{{custom_vars.note}}"
	}`)
}
