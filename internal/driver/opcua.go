// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package driver

import (
	"context"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// OPCUADriver satisfies ProtocolDriver's shape but has no working OPC-UA
// client behind it: no OPC-UA library appears anywhere in the example
// pack this module was grounded on (unlike Modbus/MQTT, which had
// concrete library precedent), so wiring one in would mean fabricating a
// dependency. See DESIGN.md. Connect, ReadSingle, ReadBatch and
// WriteSingle return a Fatal DriverError rather than silently pretending
// to succeed; Initialize, Disconnect and Unsubscribe return nil, and
// Subscribe returns ErrSubscriptionUnsupported.
type OPCUADriver struct {
	baseDriver
}

func NewOPCUADriver() *OPCUADriver {
	return &OPCUADriver{}
}

func (d *OPCUADriver) unimplemented(code string) error {
	return d.setError(schema.DriverErrorFatal, code, "OPC-UA driver has no backing client in this build")
}

func (d *OPCUADriver) Initialize(context.Context, string, []byte) error { return nil }
func (d *OPCUADriver) Connect(context.Context) error                   { return d.unimplemented("NOT_IMPLEMENTED") }
func (d *OPCUADriver) Disconnect() error                               { return nil }

func (d *OPCUADriver) ReadSingle(context.Context, PointDescriptor) (schema.Value, schema.Quality, error) {
	return schema.Value{}, schema.QualityBad, d.unimplemented("NOT_IMPLEMENTED")
}

func (d *OPCUADriver) ReadBatch(_ context.Context, points []PointDescriptor) ([]ReadResult, error) {
	results := make([]ReadResult, len(points))
	for i, p := range points {
		results[i] = ReadResult{PointID: p.PointID, Quality: schema.QualityBad}
	}
	return results, d.unimplemented("NOT_IMPLEMENTED")
}

func (d *OPCUADriver) WriteSingle(context.Context, PointDescriptor, schema.Value) error {
	return d.unimplemented("NOT_IMPLEMENTED")
}

func (d *OPCUADriver) Subscribe(PointDescriptor, AsyncCallback) (SubscriptionHandle, error) {
	return "", ErrSubscriptionUnsupported
}

func (d *OPCUADriver) Unsubscribe(SubscriptionHandle) error { return nil }

func (d *OPCUADriver) GetProtocolType() string { return schema.ProtocolOPCUA }
