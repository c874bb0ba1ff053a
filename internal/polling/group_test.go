// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package polling

import (
	"testing"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func TestBuildGroupsSkipsDisabledAndWriteOnlyPoints(t *testing.T) {
	points := []schema.DataPoint{
		{ID: 1, Address: 0, Enabled: true, AccessMode: schema.AccessRead},
		{ID: 2, Address: 1, Enabled: false, AccessMode: schema.AccessRead},
		{ID: 3, Address: 2, Enabled: true, AccessMode: schema.AccessWrite},
	}

	groups := BuildGroups(points, 1000)
	if len(groups) != 1 || len(groups[0].Points) != 1 || groups[0].Points[0].ID != 1 {
		t.Fatalf("BuildGroups = %+v, want exactly one group with point 1", groups)
	}
}

func TestBuildGroupsSplitsByRegisterFamilyAndInterval(t *testing.T) {
	holding := []byte(`{"table":"holding"}`)
	coil := []byte(`{"table":"coil"}`)

	points := []schema.DataPoint{
		{ID: 1, Address: 0, Enabled: true, ProtocolParams: holding},
		{ID: 2, Address: 1, Enabled: true, ProtocolParams: coil},
		{ID: 3, Address: 2, Enabled: true, LoggingIntervalMs: 5000, ProtocolParams: holding},
	}

	groups := BuildGroups(points, 1000)
	if len(groups) != 3 {
		t.Fatalf("BuildGroups returned %d groups, want 3 (holding@1000, coil@1000, holding@5000)", len(groups))
	}

	byFamilyInterval := map[string]int{}
	for _, g := range groups {
		byFamilyInterval[g.Family]++
		if g.Family == "holding" && g.IntervalMs == 5000 && len(g.Points) != 1 {
			t.Fatalf("holding@5000 group has %d points, want 1", len(g.Points))
		}
	}
	if byFamilyInterval["holding"] != 2 || byFamilyInterval["coil"] != 1 {
		t.Fatalf("unexpected family split: %+v", byFamilyInterval)
	}
}

func TestBuildGroupsChunksByAddressStride(t *testing.T) {
	var points []schema.DataPoint
	for i := 0; i < 3; i++ {
		points = append(points, schema.DataPoint{ID: int64(i + 1), Address: i * defaultModbusStride, Enabled: true})
	}

	groups := BuildGroups(points, 1000)
	if len(groups) != 3 {
		t.Fatalf("BuildGroups returned %d groups for addresses spaced a full stride apart, want 3 singleton groups", len(groups))
	}
}

func TestBuildGroupsKeepsContiguousAddressesInOneChunk(t *testing.T) {
	points := []schema.DataPoint{
		{ID: 1, Address: 10, Enabled: true},
		{ID: 2, Address: 20, Enabled: true},
		{ID: 3, Address: 15, Enabled: true},
	}

	groups := BuildGroups(points, 1000)
	if len(groups) != 1 || len(groups[0].Points) != 3 {
		t.Fatalf("BuildGroups = %+v, want one group of 3 address-sorted points within stride", groups)
	}
	if groups[0].Points[0].Address != 10 || groups[0].Points[1].Address != 15 || groups[0].Points[2].Address != 20 {
		t.Fatalf("chunk not address-sorted: %+v", groups[0].Points)
	}
}
