// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"
	"sync/atomic"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// nullDriver is a driver.ProtocolDriver whose Connect always succeeds
// instantly — used wherever a test needs a live Worker registered without
// caring about its connect/backoff behavior (that's internal/worker's own
// test package's job).
type nullDriver struct {
	connected int32
}

func (d *nullDriver) Initialize(ctx context.Context, endpoint string, configJSON []byte) error {
	return nil
}

func (d *nullDriver) Connect(ctx context.Context) error {
	atomic.StoreInt32(&d.connected, 1)
	return nil
}

func (d *nullDriver) Disconnect() error {
	atomic.StoreInt32(&d.connected, 0)
	return nil
}

func (d *nullDriver) IsConnected() bool { return atomic.LoadInt32(&d.connected) == 1 }

func (d *nullDriver) ReadSingle(ctx context.Context, point driver.PointDescriptor) (schema.Value, schema.Quality, error) {
	return schema.Value{}, schema.QualityGood, nil
}

func (d *nullDriver) ReadBatch(ctx context.Context, points []driver.PointDescriptor) ([]driver.ReadResult, error) {
	return nil, nil
}

func (d *nullDriver) WriteSingle(ctx context.Context, point driver.PointDescriptor, value schema.Value) error {
	return nil
}

func (d *nullDriver) Subscribe(point driver.PointDescriptor, cb driver.AsyncCallback) (driver.SubscriptionHandle, error) {
	return "", driver.ErrSubscriptionUnsupported
}

func (d *nullDriver) Unsubscribe(handle driver.SubscriptionHandle) error { return nil }

func (d *nullDriver) GetProtocolType() string { return schema.ProtocolModbusTCP }

func (d *nullDriver) LastError() *schema.DriverError { return nil }
