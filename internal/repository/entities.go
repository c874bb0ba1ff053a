// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// Concrete repository types. Each wraps a Repository[T] configured for
// its table/primary-key pair and adds the lookups the worker scheduler
// and export coordinator actually need beyond generic CRUD. Cache sizes
// are picked per access pattern: devices/points/settings are read on
// every reconnect and poll-group rebuild, so they get an entity cache;
// append-only audit rows (ExportLog) do not.

type TenantRepository struct{ *Repository[schema.Tenant] }

func NewTenantRepository() *TenantRepository {
	return &TenantRepository{NewRepository[schema.Tenant]("tenants", "id", 64)}
}

type SiteRepository struct{ *Repository[schema.Site] }

func NewSiteRepository() *SiteRepository {
	return &SiteRepository{NewRepository[schema.Site]("sites", "id", 256)}
}

type EdgeServerRepository struct{ *Repository[schema.EdgeServer] }

func NewEdgeServerRepository() *EdgeServerRepository {
	return &EdgeServerRepository{NewRepository[schema.EdgeServer]("edge_servers", "id", 64)}
}

type ProtocolRepository struct{ *Repository[schema.Protocol] }

func NewProtocolRepository() *ProtocolRepository {
	return &ProtocolRepository{NewRepository[schema.Protocol]("protocols", "id", 32)}
}

// FindByType looks up a protocol by its well-known type symbol (e.g.
// schema.ProtocolModbusTCP), used by driver construction and the BACnet
// discovery service's seed check.
func (r *ProtocolRepository) FindByType(protocolType string) (schema.Protocol, error) {
	var p schema.Protocol
	q, args, err := sq.Select("*").From("protocols").Where(sq.Eq{"protocol_type": protocolType}).
		PlaceholderFormat(r.PlaceholderFormat()).ToSql()
	if err != nil {
		return p, err
	}
	err = r.DB().Get(&p, r.DB().Rebind(q), args...)
	return p, err
}

type DeviceRepository struct{ *Repository[schema.Device] }

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{NewRepository[schema.Device]("devices", "id", 4096)}
}

// FindByEdgeServer returns the devices assigned to edgeServerID (only the
// enabled ones when enabledOnly is set), the partitioning query StartAllActiveWorkers uses to shard ownership
// across collector instances.
func (r *DeviceRepository) FindByEdgeServer(edgeServerID int64, enabledOnly bool) ([]schema.Device, error) {
	conds := []sq.Sqlizer{sq.Eq{"edge_server_id": edgeServerID}}
	if enabledOnly {
		conds = append(conds, sq.Eq{"enabled": true})
	}
	return r.FindByConditions(conds, "id", nil)
}

// FindUnassigned returns enabled devices with no edge_server_id.
// StartAllActiveWorkers does not use it: per the Open Question decision
// recorded in DESIGN.md, such devices are started by no collector.
func (r *DeviceRepository) FindUnassigned() ([]schema.Device, error) {
	conds := []sq.Sqlizer{sq.Eq{"edge_server_id": nil}, sq.Eq{"enabled": true}}
	return r.FindByConditions(conds, "id", nil)
}

type DataPointRepository struct{ *Repository[schema.DataPoint] }

func NewDataPointRepository() *DataPointRepository {
	return &DataPointRepository{NewRepository[schema.DataPoint]("data_points", "id", 16384)}
}

// FindByDevice returns every data point belonging to deviceID, used on
// worker start and on ReloadDataPoints.
func (r *DataPointRepository) FindByDevice(deviceID int64, enabledOnly bool) ([]schema.DataPoint, error) {
	conds := []sq.Sqlizer{sq.Eq{"device_id": deviceID}}
	if enabledOnly {
		conds = append(conds, sq.Eq{"enabled": true})
	}
	return r.FindByConditions(conds, "address", nil)
}

// DeviceSettingsRepository is keyed by device_id (1:1 with Device), so it
// wraps Repository[T] with "device_id" as the primary-key column rather
// than a synthetic "id".
type DeviceSettingsRepository struct{ *Repository[schema.DeviceSettings] }

func NewDeviceSettingsRepository() *DeviceSettingsRepository {
	return &DeviceSettingsRepository{NewRepository[schema.DeviceSettings]("device_settings", "device_id", 4096)}
}

type DeviceScheduleRepository struct{ *Repository[schema.DeviceSchedule] }

func NewDeviceScheduleRepository() *DeviceScheduleRepository {
	return &DeviceScheduleRepository{NewRepository[schema.DeviceSchedule]("device_schedules", "id", 1024)}
}

func (r *DeviceScheduleRepository) FindByDevice(deviceID int64) ([]schema.DeviceSchedule, error) {
	return r.FindByConditions([]sq.Sqlizer{sq.Eq{"device_id": deviceID}, sq.Eq{"enabled": true}}, "id", nil)
}

type ExportTargetRepository struct{ *Repository[schema.ExportTarget] }

func NewExportTargetRepository() *ExportTargetRepository {
	return &ExportTargetRepository{NewRepository[schema.ExportTarget]("export_targets", "id", 1024)}
}

func (r *ExportTargetRepository) FindEnabled(tenantID int64) ([]schema.ExportTarget, error) {
	return r.FindByConditions([]sq.Sqlizer{
		sq.Eq{"tenant_id": tenantID},
		sq.Eq{"enabled": true},
	}, "id", nil)
}

type ExportTargetMappingRepository struct{ *Repository[schema.ExportTargetMapping] }

func NewExportTargetMappingRepository() *ExportTargetMappingRepository {
	return &ExportTargetMappingRepository{NewRepository[schema.ExportTargetMapping]("export_target_mappings", "id", 8192)}
}

// FindByTarget returns every mapping row for targetID, which the export
// coordinator filters in-process via ExportTargetMapping.Matches.
func (r *ExportTargetMappingRepository) FindByTarget(targetID int64) ([]schema.ExportTargetMapping, error) {
	return r.FindByConditions([]sq.Sqlizer{sq.Eq{"target_id": targetID}}, "id", nil)
}

type PayloadTemplateRepository struct{ *Repository[schema.PayloadTemplate] }

func NewPayloadTemplateRepository() *PayloadTemplateRepository {
	return &PayloadTemplateRepository{NewRepository[schema.PayloadTemplate]("payload_templates", "id", 256)}
}

func (r *PayloadTemplateRepository) FindByCategory(tenantID int64, category schema.TemplateCategory) ([]schema.PayloadTemplate, error) {
	return r.FindByConditions([]sq.Sqlizer{
		sq.Eq{"tenant_id": tenantID},
		sq.Eq{"category": string(category)},
	}, "id", nil)
}

type ExportScheduleRepository struct{ *Repository[schema.ExportSchedule] }

func NewExportScheduleRepository() *ExportScheduleRepository {
	return &ExportScheduleRepository{NewRepository[schema.ExportSchedule]("export_schedules", "id", 256)}
}

func (r *ExportScheduleRepository) FindEnabled() ([]schema.ExportSchedule, error) {
	return r.FindByConditions([]sq.Sqlizer{sq.Eq{"enabled": true}}, "id", nil)
}

// ExportLogRepository has no entity cache: these are append-only audit
// rows never re-read by primary key on the hot path.
type ExportLogRepository struct{ *Repository[schema.ExportLog] }

func NewExportLogRepository() *ExportLogRepository {
	return &ExportLogRepository{NewRepository[schema.ExportLog]("export_logs", "id", 0)}
}

// FindRecentByTarget returns the most recent limit log rows for targetID,
// newest first, for the CLI's --test-connection diagnostics.
func (r *ExportLogRepository) FindRecentByTarget(targetID int64, limit uint64) ([]schema.ExportLog, error) {
	return r.FindByConditions([]sq.Sqlizer{sq.Eq{"target_id": targetID}}, "started_at DESC", &Page{Limit: limit})
}

type UserRepository struct{ *Repository[schema.User] }

func NewUserRepository() *UserRepository {
	return &UserRepository{NewRepository[schema.User]("users", "id", 256)}
}

// SystemSettingsRepository is keyed by a (tenant_id, key) composite, which
// does not fit the generic Repository[T]'s single-column primary key
// assumption, so it talks to the DAL directly instead of embedding one.
type SystemSettingsRepository struct {
	dal *DatabaseAbstractionLayer
}

func NewSystemSettingsRepository() *SystemSettingsRepository {
	return &SystemSettingsRepository{dal: NewDAL()}
}

func (r *SystemSettingsRepository) Get(tenantID int64, key string) (schema.SystemSettings, error) {
	var s schema.SystemSettings
	q, args, err := sq.Select("*").From("system_settings").
		Where(sq.Eq{"tenant_id": tenantID, "setting_key": key}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return s, err
	}
	err = r.dal.DB.Get(&s, r.dal.DB.Rebind(q), args...)
	return s, err
}

func (r *SystemSettingsRepository) Set(tenantID int64, key, value string) error {
	_, err := r.dal.ExecuteUpsert("system_settings", map[string]interface{}{
		"tenant_id":   tenantID,
		"setting_key": key,
		"value":       value,
	}, []string{"tenant_id", "setting_key"})
	return err
}

func (r *SystemSettingsRepository) FindAll(tenantID int64) ([]schema.SystemSettings, error) {
	var rows []schema.SystemSettings
	q, args, err := sq.Select("*").From("system_settings").Where(sq.Eq{"tenant_id": tenantID}).
		PlaceholderFormat(r.dal.placeholderFormat()).ToSql()
	if err != nil {
		return nil, err
	}
	err = r.dal.DB.Select(&rows, r.dal.DB.Rebind(q), args...)
	return rows, err
}
