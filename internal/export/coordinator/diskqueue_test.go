// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestDiskQueueEnqueueThenSweepSuccessWithAutoCleanup(t *testing.T) {
	dir := t.TempDir()
	q := NewDiskQueue(dir, 7, true)

	if err := q.Enqueue(42, schema.Alarm{PointID: 1, Status: "alert"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("queue dir has %d files after Enqueue, want 1", len(entries))
	}

	var gotTarget int64
	var gotPoint int64
	q.Sweep(func(targetID int64, alarm schema.Alarm) bool {
		gotTarget = targetID
		gotPoint = alarm.PointID
		return true
	})

	if gotTarget != 42 || gotPoint != 1 {
		t.Fatalf("Sweep's resend called with target=%d point=%d, want 42/1", gotTarget, gotPoint)
	}

	entries, err = os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir after Sweep: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("queue dir has %d files after a successful auto-cleanup sweep, want 0", len(entries))
	}
}

func TestDiskQueueSweepKeepsFailedEntryUntilRetentionElapses(t *testing.T) {
	dir := t.TempDir()
	q := NewDiskQueue(dir, 7, true)

	if err := q.Enqueue(1, schema.Alarm{PointID: 5}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	calls := 0
	q.Sweep(func(targetID int64, alarm schema.Alarm) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Fatalf("resend called %d times, want 1", calls)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatal("a failed resend within the retention window was pruned early")
	}
}

func TestDiskQueueSweepPrunesStaleFailedEntryPastRetention(t *testing.T) {
	dir := t.TempDir()
	q := NewDiskQueue(dir, 7, true)

	name := filepath.Join(dir, "20200101T000000.000000000.json")
	if err := os.WriteFile(name, []byte(`{"target_id":9,"alarm":{"point_id":1}}`), 0o644); err != nil {
		t.Fatalf("writing stale fixture file: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(name, stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	q.Sweep(func(targetID int64, alarm schema.Alarm) bool { return false })

	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatal("Sweep did not prune a failed entry past its retention window")
	}
}

func TestDiskQueueSweepOnMissingDirectoryIsANoop(t *testing.T) {
	q := NewDiskQueue(filepath.Join(t.TempDir(), "never-created"), 7, true)
	q.Sweep(func(targetID int64, alarm schema.Alarm) bool {
		t.Fatal("resend called against a queue directory that was never created")
		return true
	})
}
