// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"sync"
	"testing"

	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func newIdleWorker(deviceID int64) *worker.Worker {
	return worker.New(schema.Device{ID: deviceID, Name: "dev"}, schema.DeviceSettings{DeviceID: deviceID}, nil, &nullDriver{}, nil, nil)
}

func TestRegistryRegisterGetHasCount(t *testing.T) {
	r := NewRegistry()
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 on a new registry", r.Count())
	}

	w1 := newIdleWorker(1)
	w2 := newIdleWorker(2)
	r.Register(w1)
	r.Register(w2)

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	if !r.Has(1) || !r.Has(2) {
		t.Fatal("Has() false for a registered device")
	}
	if got, ok := r.Get(1); !ok || got != w1 {
		t.Fatal("Get(1) did not return the registered worker")
	}

	r.Unregister(1)
	if r.Has(1) {
		t.Fatal("Has(1) true after Unregister")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d after Unregister, want 1", r.Count())
	}
}

// TestRegistryForEachSnapshotAllowsReentrantUnregister is the anti-deadlock
// requirement ForEach exists for: a callback that calls back into the
// Registry (here, Unregister) must not deadlock against ForEach's own lock.
func TestRegistryForEachSnapshotAllowsReentrantUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(newIdleWorker(1))
	r.Register(newIdleWorker(2))
	r.Register(newIdleWorker(3))

	var mu sync.Mutex
	var visited []int64

	done := make(chan struct{})
	go func() {
		r.ForEach(func(w *worker.Worker) {
			mu.Lock()
			visited = append(visited, w.DeviceID())
			mu.Unlock()
			r.Unregister(w.DeviceID())
		})
		close(done)
	}()

	select {
	case <-done:
	default:
	}
	<-done

	if r.Count() != 0 {
		t.Fatalf("Count() = %d after ForEach unregistered every worker, want 0", r.Count())
	}
	mu.Lock()
	n := len(visited)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("ForEach visited %d workers, want 3", n)
	}
}

func TestRegistryGetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(99); ok {
		t.Fatal("Get(99) on an empty registry returned ok=true")
	}
}
