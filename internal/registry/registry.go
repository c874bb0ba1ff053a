// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry implements the Worker Registry & Scheduler (C5): the
// thread-safe collection of live Workers, the factory that builds them,
// and the bulk/per-device operations the dispatcher and CLI drive.
package registry

import (
	"fmt"
	"sync"

	"github.com/smart-guard/pulseone-core/internal/worker"
)

// Registry is a thread-safe mapping from device id to Worker.
type Registry struct {
	mu      sync.RWMutex
	workers map[int64]*worker.Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[int64]*worker.Worker)}
}

// Register adds w under its own DeviceID, replacing any prior entry for
// that device without stopping it — callers are responsible for calling
// Stop on whatever they're replacing.
func (r *Registry) Register(w *worker.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.DeviceID()] = w
}

func (r *Registry) Unregister(deviceID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, deviceID)
}

func (r *Registry) Get(deviceID int64) (*worker.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[deviceID]
	return w, ok
}

func (r *Registry) Has(deviceID int64) bool {
	_, ok := r.Get(deviceID)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// ForEach snapshots the map under lock, then calls fn for every Worker
// outside the lock — a callback that itself calls back into the Registry
// (e.g. Unregister) cannot deadlock against the snapshot.
func (r *Registry) ForEach(fn func(*worker.Worker)) {
	r.mu.RLock()
	snapshot := make([]*worker.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		snapshot = append(snapshot, w)
	}
	r.mu.RUnlock()

	for _, w := range snapshot {
		fn(w)
	}
}

// errNotFound builds the error returned by operations that look up a
// device id the registry has no Worker for.
func errNotFound(deviceID int64) error {
	return fmt.Errorf("registry: no worker registered for device %d", deviceID)
}
