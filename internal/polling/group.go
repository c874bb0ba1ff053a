// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package polling implements the per-worker polling group engine (C4):
// partitioning read-enabled points into groups, scheduling them on a
// min-heap keyed by next-poll deadline, and applying the
// scaling/range/deadband pipeline before emission.
package polling

import (
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// defaultModbusStride is the default address-contiguity window (§4.4)
// used to decide whether two Modbus points belong in the same group.
const defaultModbusStride = 50

// registerFamily is the grouping key for protocols that expose distinct
// register/object tables (Modbus holding vs coil); read from a point's
// ProtocolParams "table" field, defaulting to "holding".
func registerFamily(p schema.DataPoint) string {
	var params map[string]string
	_ = jsonUnmarshalParams(p.ProtocolParams, &params)
	if params != nil {
		if t, ok := params["table"]; ok && t != "" {
			return t
		}
	}
	return "holding"
}

// Group is one set of points read together in a single driver.ReadBatch
// call on a common deadline.
type Group struct {
	Family       string
	IntervalMs   int
	Points       []schema.DataPoint
	Descriptors  []driver.PointDescriptor
	nextDeadline time.Time
	failCount    int
	lastEmitted  map[int64]float64
	lastEmitAt   map[int64]time.Time
}

// failThreshold is the count of consecutive Bad/CommFailure reads at
// which a group raises to the worker state machine (§4.4 step 1).
const failThreshold = 5

func newGroup(family string, intervalMs int) *Group {
	return &Group{
		Family:      family,
		IntervalMs:  intervalMs,
		lastEmitted: make(map[int64]float64),
		lastEmitAt:  make(map[int64]time.Time),
	}
}

// BuildGroups partitions points into Groups per §4.4's criteria: same
// register family, same polling_interval_ms, addresses within stride.
// MQTT points never reach here — subscription diffing is handled
// separately by Engine.diffSubscriptions in engine.go.
func BuildGroups(points []schema.DataPoint, deviceIntervalMs int) []*Group {
	byKey := map[string][]schema.DataPoint{}
	for _, p := range points {
		if !p.Enabled || p.AccessMode == schema.AccessWrite {
			continue
		}
		interval := deviceIntervalMs
		if p.LoggingIntervalMs > 0 {
			interval = p.LoggingIntervalMs
		}
		key := registerFamily(p) + ":" + itoa(interval)
		byKey[key] = append(byKey[key], p)
	}

	var groups []*Group
	for key, pts := range byKey {
		family, interval := splitKey(key)
		sortByAddress(pts)
		for _, chunk := range chunkByStride(pts, defaultModbusStride) {
			g := newGroup(family, interval)
			g.Points = chunk
			g.Descriptors = toDescriptors(chunk)
			g.nextDeadline = time.Now()
			groups = append(groups, g)
		}
	}
	return groups
}

func toDescriptors(points []schema.DataPoint) []driver.PointDescriptor {
	descs := make([]driver.PointDescriptor, len(points))
	for i, p := range points {
		var params map[string]string
		_ = jsonUnmarshalParams(p.ProtocolParams, &params)
		descs[i] = driver.PointDescriptor{PointID: p.ID, Address: p.Address, DataType: p.DataType, Params: params}
	}
	return descs
}

func sortByAddress(points []schema.DataPoint) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Address < points[j-1].Address; j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}

// chunkByStride splits address-sorted points into runs no wider than
// stride registers, mirroring the Modbus driver's own chunking so group
// boundaries line up with what one ReadBatch call can cover.
func chunkByStride(points []schema.DataPoint, stride int) [][]schema.DataPoint {
	if len(points) == 0 {
		return nil
	}
	var chunks [][]schema.DataPoint
	start := 0
	for i := 1; i <= len(points); i++ {
		if i == len(points) || points[i].Address-points[start].Address >= stride {
			chunks = append(chunks, points[start:i])
			start = i
		}
	}
	return chunks
}
