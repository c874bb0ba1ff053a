// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"time"
)

// Tenant is the top-level ownership boundary. Devices, sites and export
// targets are all scoped to exactly one tenant.
type Tenant struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Site groups devices by physical location within a tenant.
type Site struct {
	ID       int64  `json:"id" db:"id"`
	TenantID int64  `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`
}

// EdgeServer is a collector process identity used to shard Device
// ownership across multiple running collectors.
type EdgeServer struct {
	ID       int64  `json:"id" db:"id"`
	TenantID int64  `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`
}

// Protocol is the enumeration table of supported field protocols.
type Protocol struct {
	ID                  int64  `json:"id" db:"id"`
	ProtocolType        string `json:"protocol_type" db:"protocol_type"` // e.g. MODBUS_TCP, BACNET_IP, MQTT
	Category            string `json:"category" db:"category"`          // industrial / iot / building_automation
	DefaultPort         int    `json:"default_port" db:"default_port"`
	UsesSerial          bool   `json:"uses_serial" db:"uses_serial"`
	RequiresBroker      bool   `json:"requires_broker" db:"requires_broker"`
	SupportedOperations string `json:"supported_operations" db:"supported_operations"` // comma-separated
	SupportedDataTypes  string `json:"supported_data_types" db:"supported_data_types"`  // comma-separated
	ConnectionParamsSchema string `json:"connection_params_schema" db:"connection_params_schema"`
}

// Well-known protocol type symbols. Kept as constants rather than an enum
// type so the Protocol table itself remains the single source of truth.
const (
	ProtocolModbusTCP = "MODBUS_TCP"
	ProtocolModbusRTU = "MODBUS_RTU"
	ProtocolBACnetIP  = "BACNET_IP"
	ProtocolMQTT      = "MQTT"
	ProtocolOPCUA     = "OPC_UA"
)

// Device is a single field device a collector polls. (tenant, site, name)
// is unique; endpoint must be non-empty when enabled.
type Device struct {
	ID                   int64           `json:"id" db:"id"`
	Name                 string          `json:"name" db:"name"`
	TenantID             int64           `json:"tenant_id" db:"tenant_id"`
	SiteID               int64           `json:"site_id" db:"site_id"`
	EdgeServerID         *int64          `json:"edge_server_id" db:"edge_server_id"`
	ProtocolID           int64           `json:"protocol_id" db:"protocol_id"`
	Endpoint             string          `json:"endpoint" db:"endpoint"`
	ConfigJSON           json.RawMessage `json:"config" db:"config"`
	Enabled              bool            `json:"enabled" db:"enabled"`
	PollingIntervalMs    int             `json:"polling_interval_ms" db:"polling_interval_ms"`
	TimeoutMs            int             `json:"timeout_ms" db:"timeout_ms"`
	RetryCount           int             `json:"retry_count" db:"retry_count"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate checks the invariants called out in the data model: an enabled
// device must have a non-empty endpoint.
func (d *Device) Validate() error {
	if d.Enabled && d.Endpoint == "" {
		return &ConfigError{Target: d.Name, Message: "enabled device has empty endpoint"}
	}
	return nil
}

// DataPoint is a single tag on a Device. (device, address, data_type) is
// unique.
type DataPoint struct {
	ID             int64      `json:"id" db:"id"`
	DeviceID       int64      `json:"device_id" db:"device_id"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description" db:"description"`
	Address        int        `json:"address" db:"address"`
	DataType       DataType   `json:"data_type" db:"data_type"`
	AccessMode     AccessMode `json:"access_mode" db:"access_mode"`
	Enabled        bool       `json:"enabled" db:"enabled"`
	ScalingFactor  float64    `json:"scaling_factor" db:"scaling_factor"`
	ScalingOffset  float64    `json:"scaling_offset" db:"scaling_offset"`
	Min            *float64   `json:"min" db:"min_value"`
	Max            *float64   `json:"max" db:"max_value"`
	Unit           string     `json:"unit" db:"unit"`
	LoggingEnabled bool       `json:"logging_enabled" db:"logging_enabled"`
	LoggingIntervalMs int     `json:"logging_interval_ms" db:"logging_interval_ms"`
	Deadband       float64    `json:"deadband" db:"deadband"`
	Tags           string     `json:"tags" db:"tags"`
	Metadata       json.RawMessage `json:"metadata" db:"metadata"`
	ProtocolParams json.RawMessage `json:"protocol_params" db:"protocol_params"`
}

// ApplyScaling converts a raw driver reading into engineering units.
func (p *DataPoint) ApplyScaling(raw float64) float64 {
	factor := p.ScalingFactor
	if factor == 0 {
		factor = 1
	}
	return raw*factor + p.ScalingOffset
}

// InRange reports whether eng falls within [Min, Max] when both bounds are
// set; a missing bound is treated as unbounded on that side.
func (p *DataPoint) InRange(eng float64) bool {
	if p.Min != nil && eng < *p.Min {
		return false
	}
	if p.Max != nil && eng > *p.Max {
		return false
	}
	return true
}

// DeviceSettings is the 1:1 per-device tuning row keyed by device id.
type DeviceSettings struct {
	DeviceID               int64 `json:"device_id" db:"device_id"`
	PollingIntervalMs      int   `json:"polling_interval_ms" db:"polling_interval_ms"`
	ConnectionTimeoutMs    int   `json:"connection_timeout_ms" db:"connection_timeout_ms"`
	ReadTimeoutMs          int   `json:"read_timeout_ms" db:"read_timeout_ms"`
	WriteTimeoutMs         int   `json:"write_timeout_ms" db:"write_timeout_ms"`
	MaxRetryCount          int   `json:"max_retry_count" db:"max_retry_count"`
	RetryIntervalMs        int   `json:"retry_interval_ms" db:"retry_interval_ms"`
	BackoffTimeMs          int   `json:"backoff_time_ms" db:"backoff_time_ms"`
	BackoffMultiplier      float64 `json:"backoff_multiplier" db:"backoff_multiplier"`
	MaxBackoffTimeMs       int   `json:"max_backoff_time_ms" db:"max_backoff_time_ms"`
	KeepAliveEnabled       bool  `json:"keep_alive_enabled" db:"keep_alive_enabled"`
	KeepAliveIntervalS     int   `json:"keep_alive_interval_s" db:"keep_alive_interval_s"`
	KeepAliveTimeoutS      int   `json:"keep_alive_timeout_s" db:"keep_alive_timeout_s"`
	ScanRateOverrideMs     *int  `json:"scan_rate_override_ms" db:"scan_rate_override_ms"`
	DataValidationEnabled  bool  `json:"data_validation_enabled" db:"data_validation_enabled"`
	PerformanceMonitoring  bool  `json:"performance_monitoring" db:"performance_monitoring"`
	DiagnosticMode         bool  `json:"diagnostic_mode" db:"diagnostic_mode"`
}

// Validate enforces the positivity invariants from the data model.
func (s *DeviceSettings) Validate() error {
	if s.PollingIntervalMs <= 0 {
		return &ConfigError{Target: "device_settings", Message: "polling_interval_ms must be positive"}
	}
	if s.ConnectionTimeoutMs <= 0 || s.ReadTimeoutMs <= 0 || s.WriteTimeoutMs <= 0 {
		return &ConfigError{Target: "device_settings", Message: "timeout values must be positive"}
	}
	if s.BackoffMultiplier <= 0 {
		return &ConfigError{Target: "device_settings", Message: "backoff_multiplier must be > 0"}
	}
	return nil
}

// DeviceSchedule associates a Device with a cron-style availability window
// (e.g. "only poll 06:00-22:00"); absence of a row means always-on.
type DeviceSchedule struct {
	ID         int64  `json:"id" db:"id"`
	DeviceID   int64  `json:"device_id" db:"device_id"`
	CronExpr   string `json:"cron_expression" db:"cron_expression"`
	DurationMs int64  `json:"duration_ms" db:"duration_ms"`
	Enabled    bool   `json:"enabled" db:"enabled"`
}

// SystemSettings is a small per-tenant key/value row for collector-wide
// tuning that does not warrant its own table (e.g. failed_file_path).
type SystemSettings struct {
	TenantID int64  `json:"tenant_id" db:"tenant_id"`
	Key      string `json:"key" db:"setting_key"`
	Value    string `json:"value" db:"value"`
}

// User is retained for ExportLog attribution (manual exports triggered via
// MANUAL_EXPORT command carry an operator identity); full auth is out of
// scope for the core.
type User struct {
	ID       int64  `json:"id" db:"id"`
	TenantID int64  `json:"tenant_id" db:"tenant_id"`
	Username string `json:"username" db:"username"`
}
