// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// alwaysFailDriver never connects, so a Worker built on it sits in
// Reconnecting forever — exactly the state the health sweep watches for.
type alwaysFailDriver struct{ nullDriver }

func (d *alwaysFailDriver) Connect(ctx context.Context) error {
	return driver.ErrSubscriptionUnsupported
}

// TestMonitorSweepFlagsWorkerStuckPastThreshold drives sweep directly
// instead of waiting on its 30s gocron cadence: a Worker stuck in
// Reconnecting is tracked on its first sweep and flagged only once it has
// been stuck for at least stuckAfter, and is forgotten the moment it
// recovers or disappears from the registry.
func TestMonitorSweepFlagsWorkerStuckPastThreshold(t *testing.T) {
	reg := NewRegistry()
	w := worker.New(schema.Device{ID: 1, Name: "dev-1"}, schema.DeviceSettings{DeviceID: 1, RetryIntervalMs: 10, MaxBackoffTimeMs: 20}, nil, &alwaysFailDriver{}, nil, nil)
	reg.Register(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := <-w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForRegistryState(t, w, worker.StateReconnecting, time.Second)

	m, err := NewMonitor(reg, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	m.sweep()
	if _, tracked := m.since[1]; !tracked {
		t.Fatal("sweep did not start tracking a worker stuck in Reconnecting")
	}

	time.Sleep(60 * time.Millisecond)
	m.sweep() // past stuckAfter now; exercised for its logging side effect only

	reg.Unregister(1)
	m.sweep()
	if _, tracked := m.since[1]; tracked {
		t.Fatal("sweep kept tracking a worker that left the registry")
	}

	<-w.Stop()
}
