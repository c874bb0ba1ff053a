// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// WriteDataPoint looks up the owning Worker and delegates, surfacing
// errNotFound if no Worker is registered for deviceID.
func (s *Scheduler) WriteDataPoint(ctx context.Context, deviceID, pointID int64, value schema.Value) error {
	w, ok := s.registry.Get(deviceID)
	if !ok {
		return errNotFound(deviceID)
	}
	return w.WriteDataPoint(ctx, pointID, value)
}

// ControlDigitalOutput is the boolean-output convenience wrapper over
// WriteDataPoint named in §4.5's control method table.
func (s *Scheduler) ControlDigitalOutput(ctx context.Context, deviceID, pointID int64, on bool) error {
	return s.WriteDataPoint(ctx, deviceID, pointID, schema.NewBoolValue(on))
}

// ControlAnalogOutput is the float-output convenience wrapper over
// WriteDataPoint named in §4.5's control method table.
func (s *Scheduler) ControlAnalogOutput(ctx context.Context, deviceID, pointID int64, value float64) error {
	return s.WriteDataPoint(ctx, deviceID, pointID, schema.NewFloatValue(value))
}
