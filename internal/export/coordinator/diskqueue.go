// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// DiskQueue is the failed-alarm persistence store from §4.9 step 5: an
// alarm that exhausts its target's retries is written here instead of
// dropped, and a background sweep (see coordinator.go's retry job)
// re-attempts delivery on its own cadence.
type DiskQueue struct {
	mu                 sync.Mutex
	path               string
	keepFailedDays     int
	autoCleanupSuccess bool
}

func NewDiskQueue(path string, keepFailedDays int, autoCleanupSuccess bool) *DiskQueue {
	return &DiskQueue{path: path, keepFailedDays: keepFailedDays, autoCleanupSuccess: autoCleanupSuccess}
}

// failedEntry is the on-disk record: the alarm plus which target it was
// headed for, so a retry sweep can re-resolve the handler.
type failedEntry struct {
	TargetID int64        `json:"target_id"`
	Alarm    schema.Alarm `json:"alarm"`
}

// Enqueue persists alarm for targetID under failed_file_path/<ts>.json.
func (q *DiskQueue) Enqueue(targetID int64, alarm schema.Alarm) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(q.path, 0o755); err != nil {
		return err
	}

	entry := failedEntry{TargetID: targetID, Alarm: alarm}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	name := time.Now().UTC().Format("20060102T150405.000000000") + ".json"
	return os.WriteFile(filepath.Join(q.path, name), data, 0o644)
}

// Sweep lists every queued file oldest-first and hands each to resend.
// A file resend reports true is removed (when autoCleanupSuccess is on)
// or always removed on success if autoCleanupSuccess is off and
// keepFailedDays has already elapsed for it; failed resends are left in
// place until keepFailedDays elapses, at which point they are pruned
// regardless of outcome.
func (q *DiskQueue) Sweep(resend func(targetID int64, alarm schema.Alarm) bool) {
	entries, err := q.listSorted()
	if err != nil {
		log.Warnf("export: listing failed-alarm queue: %v", err)
		return
	}

	cutoff := time.Now().AddDate(0, 0, -q.keepFailedDays)

	for _, e := range entries {
		full := filepath.Join(q.path, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		var fe failedEntry
		if err := json.Unmarshal(data, &fe); err != nil {
			log.Warnf("export: decoding failed-alarm file %s: %v", full, err)
			os.Remove(full)
			continue
		}

		success := resend(fe.TargetID, fe.Alarm)
		switch {
		case success && q.autoCleanupSuccess:
			os.Remove(full)
		case !success && info.ModTime().Before(cutoff):
			os.Remove(full)
		}
	}
}

func (q *DiskQueue) listSorted() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
