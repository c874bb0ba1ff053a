// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// fakeDriver is a minimal driver.ProtocolDriver whose Connect behavior is
// scripted by failUntilAttempt: attempts before that number fail, the
// rest succeed. Zero points are ever polled through it, so Tick's
// polling-group bookkeeping never touches it — this fake exists purely
// to drive the state machine's connect/backoff decisions.
type fakeDriver struct {
	failUntilAttempt int32
	attempts         int32
	connected        int32
}

func (d *fakeDriver) Initialize(ctx context.Context, endpoint string, configJSON []byte) error {
	return nil
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	n := atomic.AddInt32(&d.attempts, 1)
	if n <= d.failUntilAttempt {
		return fmt.Errorf("fakeDriver: simulated connect failure %d", n)
	}
	atomic.StoreInt32(&d.connected, 1)
	return nil
}

func (d *fakeDriver) Disconnect() error {
	atomic.StoreInt32(&d.connected, 0)
	return nil
}

func (d *fakeDriver) IsConnected() bool { return atomic.LoadInt32(&d.connected) == 1 }

func (d *fakeDriver) ReadSingle(ctx context.Context, point driver.PointDescriptor) (schema.Value, schema.Quality, error) {
	return schema.Value{}, schema.QualityGood, nil
}

func (d *fakeDriver) ReadBatch(ctx context.Context, points []driver.PointDescriptor) ([]driver.ReadResult, error) {
	return nil, nil
}

func (d *fakeDriver) WriteSingle(ctx context.Context, point driver.PointDescriptor, value schema.Value) error {
	return nil
}

func (d *fakeDriver) Subscribe(point driver.PointDescriptor, cb driver.AsyncCallback) (driver.SubscriptionHandle, error) {
	return "", driver.ErrSubscriptionUnsupported
}

func (d *fakeDriver) Unsubscribe(handle driver.SubscriptionHandle) error { return nil }

func (d *fakeDriver) GetProtocolType() string { return schema.ProtocolModbusTCP }

func (d *fakeDriver) LastError() *schema.DriverError { return nil }

func testDevice() schema.Device {
	return schema.Device{ID: 1, Name: "dev-1", SiteID: 1, Endpoint: "127.0.0.1:1"}
}

func testSettings() schema.DeviceSettings {
	return schema.DeviceSettings{
		DeviceID:          1,
		RetryIntervalMs:   10,
		BackoffMultiplier: 2,
		MaxBackoffTimeMs:  200,
	}
}

func waitForState(t *testing.T, w *Worker, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w.GetState() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker state = %s, want %s", w.GetState(), want)
}

// TestWorkerConnectsAndRunsOnFirstTry is Scenario A's happy path: a
// Worker whose first connect attempt succeeds transitions Starting ->
// Running and raises an online alarm, with ConnectFails left at zero.
func TestWorkerConnectsAndRunsOnFirstTry(t *testing.T) {
	drv := &fakeDriver{}

	var mu sync.Mutex
	var alarms []schema.Alarm
	alarmFn := func(a schema.Alarm) {
		mu.Lock()
		defer mu.Unlock()
		alarms = append(alarms, a)
	}

	w := New(testDevice(), testSettings(), nil, drv, nil, alarmFn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startErr := <-w.Start(ctx)
	if startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	waitForState(t, w, StateRunning, time.Second)

	status := w.GetStatus()
	if status.ConnectFails != 0 {
		t.Fatalf("ConnectFails = %d, want 0", status.ConnectFails)
	}

	mu.Lock()
	n := len(alarms)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("alarm count = %d, want 1 (online transition)", n)
	}

	<-w.Stop()
	waitForState(t, w, StateStopped, time.Second)
}

// TestWorkerReconnectsAfterTransientFailures is Scenario B: a Worker
// whose first two connect attempts fail moves to Reconnecting and keeps
// retrying on its backoff cadence until a later attempt succeeds, rather
// than giving up after one failure.
func TestWorkerReconnectsAfterTransientFailures(t *testing.T) {
	drv := &fakeDriver{failUntilAttempt: 2}

	w := New(testDevice(), testSettings(), nil, drv, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForState(t, w, StateReconnecting, time.Second)
	waitForState(t, w, StateRunning, 2*time.Second)

	if !drv.IsConnected() {
		t.Fatal("driver reports not connected after Worker reached Running")
	}

	<-w.Stop()
	waitForState(t, w, StateStopped, time.Second)
}

// TestWorkerStopInterruptsLongBackoffWait is Testable Invariant #3: a
// Worker parked in Reconnecting with a large backoff must still release
// well within Stop's bound once stopped, instead of sleeping out the
// full backoff before noticing the stop request.
func TestWorkerStopInterruptsLongBackoffWait(t *testing.T) {
	drv := &fakeDriver{failUntilAttempt: 1000}

	settings := testSettings()
	settings.RetryIntervalMs = 60_000
	settings.MaxBackoffTimeMs = 300_000
	settings.BackoffMultiplier = 2

	w := New(testDevice(), settings, nil, drv, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForState(t, w, StateReconnecting, time.Second)

	stopStart := time.Now()
	if err := <-w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	elapsed := time.Since(stopStart)

	if elapsed > 2*time.Second {
		t.Fatalf("Stop took %v to return while the worker was parked in a long backoff wait, want well under Stop's own timeout", elapsed)
	}
	waitForState(t, w, StateStopped, time.Second)
}

// TestWorkerGivesUpAfterOfflineThreshold is Scenario B's exhaustion
// case: a Worker that never manages to connect moves to DeviceOffline
// once it has accumulated offlineThreshold consecutive failures, instead
// of retrying forever in Reconnecting.
func TestWorkerGivesUpAfterOfflineThreshold(t *testing.T) {
	drv := &fakeDriver{failUntilAttempt: 1000}

	settings := testSettings()
	settings.MaxBackoffTimeMs = 20 // keep the test's wall-clock bounded

	w := New(testDevice(), settings, nil, drv, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForState(t, w, StateDeviceOffline, 5*time.Second)

	status := w.GetStatus()
	if status.ConnectFails < offlineThreshold {
		t.Fatalf("ConnectFails = %d, want >= %d", status.ConnectFails, offlineThreshold)
	}

	<-w.Stop()
	waitForState(t, w, StateStopped, time.Second)
}
