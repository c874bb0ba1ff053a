// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package polling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// fakeDriver is a scripted driver.ProtocolDriver: ReadBatch returns
// whatever results is set to at the time of the call.
type fakeDriver struct {
	mu           sync.Mutex
	protocol     string
	results      []driver.ReadResult
	readBatchErr error
	readBatchN   int
}

func (d *fakeDriver) Initialize(ctx context.Context, endpoint string, configJSON []byte) error {
	return nil
}
func (d *fakeDriver) Connect(ctx context.Context) error { return nil }
func (d *fakeDriver) Disconnect() error                 { return nil }
func (d *fakeDriver) IsConnected() bool                 { return true }
func (d *fakeDriver) ReadSingle(ctx context.Context, point driver.PointDescriptor) (schema.Value, schema.Quality, error) {
	return schema.Value{}, schema.QualityGood, nil
}

func (d *fakeDriver) ReadBatch(ctx context.Context, points []driver.PointDescriptor) ([]driver.ReadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readBatchN++
	return d.results, d.readBatchErr
}

func (d *fakeDriver) setResults(results []driver.ReadResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = results
}

func (d *fakeDriver) WriteSingle(ctx context.Context, point driver.PointDescriptor, value schema.Value) error {
	return nil
}
func (d *fakeDriver) Subscribe(point driver.PointDescriptor, cb driver.AsyncCallback) (driver.SubscriptionHandle, error) {
	return "", driver.ErrSubscriptionUnsupported
}
func (d *fakeDriver) Unsubscribe(handle driver.SubscriptionHandle) error { return nil }
func (d *fakeDriver) GetProtocolType() string {
	if d.protocol != "" {
		return d.protocol
	}
	return schema.ProtocolModbusTCP
}
func (d *fakeDriver) LastError() *schema.DriverError { return nil }

func onePoint(id int64, deadband float64) schema.DataPoint {
	return schema.DataPoint{ID: id, Address: 0, Enabled: true, AccessMode: schema.AccessRead, Deadband: deadband}
}

func collectResults() (func([]schema.TimestampedValue), func() []schema.TimestampedValue) {
	var mu sync.Mutex
	var all []schema.TimestampedValue
	onResults := func(tvs []schema.TimestampedValue) {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, tvs...)
	}
	get := func() []schema.TimestampedValue {
		mu.Lock()
		defer mu.Unlock()
		out := make([]schema.TimestampedValue, len(all))
		copy(out, all)
		return out
	}
	return onResults, get
}

func TestEngineTickEmitsFirstReadingRegardlessOfDeadband(t *testing.T) {
	drv := &fakeDriver{}
	points := []schema.DataPoint{onePoint(1, 5)}
	onResults, get := collectResults()

	e := NewEngine(points, schema.DeviceSettings{PollingIntervalMs: 1000}, drv, onResults, nil)
	drv.setResults([]driver.ReadResult{{PointID: 1, Value: schema.NewFloatValue(10), Quality: schema.QualityGood}})

	e.Tick(context.Background())

	got := get()
	if len(got) != 1 {
		t.Fatalf("Tick emitted %d values for a point's first reading, want 1", len(got))
	}
}

func TestEngineTickSuppressesWithinDeadbandUntilStale(t *testing.T) {
	drv := &fakeDriver{}
	points := []schema.DataPoint{onePoint(1, 5)}
	onResults, get := collectResults()

	e := NewEngine(points, schema.DeviceSettings{PollingIntervalMs: 1000}, drv, onResults, nil)
	g := e.queue[0].group

	drv.setResults([]driver.ReadResult{{PointID: 1, Value: schema.NewFloatValue(10), Quality: schema.QualityGood}})
	e.queue[0].group.nextDeadline = time.Now()
	e.Tick(context.Background())
	if len(get()) != 1 {
		t.Fatalf("first reading not emitted")
	}

	drv.setResults([]driver.ReadResult{{PointID: 1, Value: schema.NewFloatValue(12), Quality: schema.QualityGood}})
	e.queue[0].group.nextDeadline = time.Now()
	e.Tick(context.Background())
	if len(get()) != 1 {
		t.Fatalf("a value within deadband and recent last-emission was emitted anyway, got %d total", len(get()))
	}

	// Force the last emission to look stale; a still-within-deadband value
	// must now be forced through rather than suppressed forever.
	g.lastEmitAt[1] = time.Now().Add(-3 * time.Second)
	drv.setResults([]driver.ReadResult{{PointID: 1, Value: schema.NewFloatValue(12), Quality: schema.QualityGood}})
	e.queue[0].group.nextDeadline = time.Now()
	e.Tick(context.Background())

	if len(get()) != 2 {
		t.Fatalf("a stale-but-within-deadband reading was not re-emitted: got %d total, want 2", len(get()))
	}
}

func TestEngineTickRaisesThresholdAfterConsecutiveFailures(t *testing.T) {
	drv := &fakeDriver{readBatchErr: context.DeadlineExceeded}
	points := []schema.DataPoint{onePoint(1, 0)}
	onResults, _ := collectResults()

	var thresholdHits int
	var mu sync.Mutex
	onThreshold := func() {
		mu.Lock()
		thresholdHits++
		mu.Unlock()
	}

	e := NewEngine(points, schema.DeviceSettings{PollingIntervalMs: 1000}, drv, onResults, onThreshold)

	for i := 0; i < failThreshold; i++ {
		e.queue[0].group.nextDeadline = time.Now()
		e.Tick(context.Background())
	}

	mu.Lock()
	hits := thresholdHits
	mu.Unlock()
	if hits != 1 {
		t.Fatalf("onThreshold called %d times after %d consecutive failures, want 1", hits, failThreshold)
	}
}

func TestEngineSuspendStopsTicking(t *testing.T) {
	drv := &fakeDriver{}
	points := []schema.DataPoint{onePoint(1, 0)}
	onResults, get := collectResults()

	e := NewEngine(points, schema.DeviceSettings{PollingIntervalMs: 1000}, drv, onResults, nil)
	e.Suspend()

	drv.setResults([]driver.ReadResult{{PointID: 1, Value: schema.NewFloatValue(1), Quality: schema.QualityGood}})
	e.queue[0].group.nextDeadline = time.Now()
	e.Tick(context.Background())

	if len(get()) != 0 {
		t.Fatal("Tick emitted values while the engine was suspended")
	}

	e.ResumeNow()
	e.Tick(context.Background())
	if len(get()) != 1 {
		t.Fatal("ResumeNow did not allow the next Tick to read immediately")
	}
}
