// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"time"
)

// TargetKind is the closed set of export transports. New transports are
// added here, not via an open plugin interface (§9 design notes).
type TargetKind string

const (
	TargetHTTP TargetKind = "HTTP"
	TargetS3   TargetKind = "S3"
	TargetMQTT TargetKind = "MQTT"
	TargetFile TargetKind = "FILE"
)

// ExportTarget is a downstream sink. Name is unique per tenant.
type ExportTarget struct {
	ID                 int64           `json:"id" db:"id"`
	TenantID           int64           `json:"tenant_id" db:"tenant_id"`
	Name               string          `json:"name" db:"name"`
	Kind               TargetKind      `json:"kind" db:"kind"`
	Enabled            bool            `json:"enabled" db:"enabled"`
	TemplateID         *int64          `json:"template_id" db:"template_id"`
	TransportConfig    json.RawMessage `json:"transport_config" db:"transport_config"`
	RetryPolicy        json.RawMessage `json:"retry_policy" db:"retry_policy"`
	UseLocalTime       bool            `json:"use_local_time" db:"use_local_time"`
	AlarmIgnoreMinutes int             `json:"alarm_ignore_minutes" db:"alarm_ignore_minutes"`
	MaxBatchSize       int             `json:"max_batch_size" db:"max_batch_size"`
	BatchTimeoutMs     int             `json:"batch_timeout_ms" db:"batch_timeout_ms"`
}

// RetryPolicyConfig is the decoded shape of ExportTarget.RetryPolicy.
type RetryPolicyConfig struct {
	MaxRetries     int     `json:"max_retries"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	Multiplier     float64 `json:"multiplier"`
	MaxDelayMs     int     `json:"max_delay_ms"`
}

// ExportTargetMapping links a target to the points/sites it accepts, and
// the field name/conversion used when building a payload for it. A row
// with both PointID and SiteID nil is the target's catch-all.
type ExportTargetMapping struct {
	ID               int64           `json:"id" db:"id"`
	TargetID         int64           `json:"target_id" db:"target_id"`
	PointID          *int64          `json:"point_id" db:"point_id"`
	SiteID           *int64          `json:"site_id" db:"site_id"`
	TargetFieldName  string          `json:"target_field_name" db:"target_field_name"`
	ConversionConfig json.RawMessage `json:"conversion_config" db:"conversion_config"`
}

// Matches reports whether this mapping applies to an event for the given
// point/site. A catch-all mapping (both nil) matches everything.
func (m *ExportTargetMapping) Matches(pointID, siteID int64) bool {
	if m.PointID == nil && m.SiteID == nil {
		return true
	}
	if m.PointID != nil && *m.PointID == pointID {
		return true
	}
	if m.SiteID != nil && *m.SiteID == siteID {
		return true
	}
	return false
}

// TemplateCategory selects one of the four shipped reference templates,
// or USER for an operator-authored one.
type TemplateCategory string

const (
	TemplateInsite  TemplateCategory = "INSITE"
	TemplateHDC     TemplateCategory = "HDC"
	TemplateBEMS    TemplateCategory = "BEMS"
	TemplateGeneric TemplateCategory = "GENERIC"
	TemplateUser    TemplateCategory = "USER"
)

// PayloadTemplate is a JSON tree with {{variable}} placeholders.
type PayloadTemplate struct {
	ID       int64            `json:"id" db:"id"`
	TenantID int64            `json:"tenant_id" db:"tenant_id"`
	Category TemplateCategory `json:"category" db:"category"`
	Name     string           `json:"name" db:"name"`
	Body     json.RawMessage  `json:"body" db:"body"`
}

// ExportSchedule binds a cron expression to a target (or a named target
// group) for periodic batch dispatch independent of the alarm path.
type ExportSchedule struct {
	ID          int64      `json:"id" db:"id"`
	CronExpr    string     `json:"cron_expression" db:"cron_expression"`
	TargetID    *int64     `json:"target_id" db:"target_id"`
	TargetGroup string     `json:"target_group" db:"target_group"`
	Enabled     bool       `json:"enabled" db:"enabled"`
	LastRunAt   *time.Time `json:"last_run_at" db:"last_run_at"`
}

// ExportLog is the audit row for one dispatch attempt.
type ExportLog struct {
	ID           int64     `json:"id" db:"id"`
	TargetID     int64     `json:"target_id" db:"target_id"`
	AttemptCount int       `json:"attempt_count" db:"attempt_count"`
	Success      bool      `json:"success" db:"success"`
	StatusCode   int       `json:"status_code" db:"status_code"`
	SentPayload  string    `json:"sent_payload" db:"sent_payload"`   // truncated
	ResponseBody string    `json:"response_body" db:"response_body"` // truncated
	ErrorMessage string    `json:"error_message" db:"error_message"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	FinishedAt   time.Time `json:"finished_at" db:"finished_at"`
	LatencyMs    int64     `json:"latency_ms" db:"latency_ms"`
}

const (
	// MaxLoggedPayloadBytes bounds SentPayload/ResponseBody storage size.
	MaxLoggedPayloadBytes = 4096
)

// TruncateForLog clips a payload to MaxLoggedPayloadBytes for ExportLog
// storage, appending a marker so operators know it was cut.
func TruncateForLog(s string) string {
	if len(s) <= MaxLoggedPayloadBytes {
		return s
	}
	return s[:MaxLoggedPayloadBytes] + "...(truncated)"
}

// Alarm is the event payload flowing from a Worker or the command channel
// into the Export Coordinator. It is the "ctx.alarm" referenced by the
// payload transformer's variable table.
type Alarm struct {
	SiteID         int64           `json:"site_id"`
	PointID        int64           `json:"point_id"`
	PointName      string          `json:"point_name"`
	Description    string          `json:"description"`
	MeasuredValue  Value           `json:"measured_value"`
	AlarmFlag      bool            `json:"alarm_flag"`
	Status         string          `json:"status"` // normal/alert/acknowledged
	TimestampMs    int64           `json:"timestamp_unix_ms"`
	ManualOverride bool            `json:"manual_override"`
	ExtraInfo      json.RawMessage `json:"extra_info"`
}

// AlarmStatus derives the alarm_status variable exposed to templates.
func (a *Alarm) AlarmStatus() string {
	if a.Status != "" {
		return a.Status
	}
	if a.AlarmFlag {
		return "alert"
	}
	return "normal"
}

// TargetSendResult is what every ITargetHandler returns for one send.
type TargetSendResult struct {
	TargetType   TargetKind `json:"target_type"`
	TargetName   string     `json:"target_name"`
	Success      bool       `json:"success"`
	StatusCode   int        `json:"status_code"`
	ErrorMessage string     `json:"error_message"`
	SentPayload  string     `json:"sent_payload"`
	ResponseBody string     `json:"response_body"`
	AttemptCount int        `json:"attempt_count"`
	LatencyMs    int64      `json:"latency_ms"`
}
