// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"fmt"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// Factory composes C1 (repositories) and C2 (the driver switch) into a
// configured-but-not-started Worker. It holds no registry state of its
// own — Scheduler decides what to do with the Worker it returns.
type Factory struct {
	devices   *repository.DeviceRepository
	settings  *repository.DeviceSettingsRepository
	points    *repository.DataPointRepository
	protocols *repository.ProtocolRepository
}

func NewFactory(devices *repository.DeviceRepository, settings *repository.DeviceSettingsRepository, points *repository.DataPointRepository, protocols *repository.ProtocolRepository) *Factory {
	return &Factory{devices: devices, settings: settings, points: points, protocols: protocols}
}

// Build loads a Device's settings and data points, resolves its protocol
// driver, and returns an uninitialized-but-configured Worker wired to
// emit and alarm.
func (f *Factory) Build(deviceID int64, emit worker.OutputFunc, alarm worker.AlarmFunc) (*worker.Worker, error) {
	device, err := f.devices.FindByID(deviceID)
	if err != nil {
		return nil, fmt.Errorf("registry: loading device %d: %w", deviceID, err)
	}
	if err := device.Validate(); err != nil {
		return nil, err
	}

	settings, err := f.settings.FindByID(deviceID)
	if err != nil {
		return nil, fmt.Errorf("registry: loading settings for device %d: %w", deviceID, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	points, err := f.points.FindByDevice(deviceID, false)
	if err != nil {
		return nil, fmt.Errorf("registry: loading data points for device %d: %w", deviceID, err)
	}

	protocol, err := f.protocols.FindByID(device.ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("registry: loading protocol %d for device %d: %w", device.ProtocolID, deviceID, err)
	}

	drv, err := driver.New(protocol.ProtocolType)
	if err != nil {
		return nil, fmt.Errorf("registry: building driver for device %d: %w", deviceID, err)
	}

	return worker.New(device, settings, points, drv, emit, alarm), nil
}

// currentValues loads every enabled point's last-known value as a
// zero-quality placeholder snapshot — StartWorker seeds the ValueCache
// with these before the real polling engine overwrites them, so a reader
// never sees an outright gap. Since the relational store keeps no
// "current value" column of its own (only DataPoint definitions), the
// initial seed carries QualityUncertain rather than a stale reading.
func currentValues(points []schema.DataPoint) []schema.TimestampedValue {
	out := make([]schema.TimestampedValue, 0, len(points))
	for _, p := range points {
		if !p.Enabled {
			continue
		}
		out = append(out, schema.TimestampedValue{
			PointID: p.ID,
			Quality: schema.QualityUncertain,
		})
	}
	return out
}
