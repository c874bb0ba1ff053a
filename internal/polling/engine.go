// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package polling

import (
	"container/heap"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

func jsonUnmarshalParams(raw []byte, out *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func itoa(n int) string { return strconv.Itoa(n) }

func splitKey(key string) (string, int) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			interval, _ := strconv.Atoi(key[i+1:])
			return key[:i], interval
		}
	}
	return key, 0
}

// deadlineItem is one Group's slot on the scheduler's min-heap, ordered
// by nextDeadline — the same container/heap.Interface idiom used by a
// min-heap ready queue, adapted to wall-clock deadlines instead of
// priority levels.
type deadlineItem struct {
	group *Group
	index int
}

type deadlineQueue []*deadlineItem

func (q deadlineQueue) Len() int { return len(q) }
func (q deadlineQueue) Less(i, j int) bool {
	return q[i].group.nextDeadline.Before(q[j].group.nextDeadline)
}
func (q deadlineQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *deadlineQueue) Push(x interface{}) {
	item := x.(*deadlineItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *deadlineQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Engine is one Worker's polling group scheduler. A single Worker owns
// exactly one Engine; the Engine owns every Group built from that
// Worker's enabled DataPoints.
type Engine struct {
	mu       sync.Mutex
	drv      driver.ProtocolDriver
	queue    deadlineQueue
	suspended bool

	subs       map[int64]driver.SubscriptionHandle
	pushPoints []schema.DataPoint

	onResults   func([]schema.TimestampedValue)
	onThreshold func()

	seq uint64
}

// NewEngine partitions points into polling Groups and subscription
// points (protocols without native batch-read, e.g. MQTT) and builds
// the deadline min-heap. onResults receives every tick's good/degraded
// readings; onThreshold fires once a Group's consecutive-failure count
// reaches failThreshold, and again on each further failed tick (§4.4
// step 1).
func NewEngine(points []schema.DataPoint, settings schema.DeviceSettings, drv driver.ProtocolDriver, onResults func([]schema.TimestampedValue), onThreshold func()) *Engine {
	e := &Engine{
		drv:         drv,
		onResults:   onResults,
		onThreshold: onThreshold,
		subs:        make(map[int64]driver.SubscriptionHandle),
	}
	e.rebuild(points, settings)
	return e
}

func (e *Engine) rebuild(points []schema.DataPoint, settings schema.DeviceSettings) {
	e.queue = nil
	heap.Init(&e.queue)

	if isPushProtocol(e.drv.GetProtocolType()) {
		e.pushPoints = points
		e.resubscribe()
		return
	}

	for _, g := range BuildGroups(points, settings.PollingIntervalMs) {
		heap.Push(&e.queue, &deadlineItem{group: g})
	}
}

func isPushProtocol(protocolType string) bool {
	return protocolType == schema.ProtocolMQTT
}

// Reload replaces the point set and/or settings without tearing down the
// Worker's driver session. Subscriptions are diffed rather than blindly
// torn down and rebuilt, so an unrelated point-list edit does not drop
// and re-establish every MQTT subscription.
func (e *Engine) Reload(points []schema.DataPoint, settings schema.DeviceSettings) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if isPushProtocol(e.drv.GetProtocolType()) {
		e.diffSubscriptions(points)
		e.pushPoints = points
		return
	}
	e.rebuild(points, settings)
}

// resubscribe is used on first build only; Reload uses diffSubscriptions
// to avoid unnecessary unsubscribe/subscribe churn.
func (e *Engine) resubscribe() {
	for _, p := range e.pushPoints {
		if !p.Enabled || p.AccessMode == schema.AccessWrite {
			continue
		}
		e.subscribeOne(p)
	}
}

func (e *Engine) subscribeOne(p schema.DataPoint) {
	var params map[string]string
	_ = jsonUnmarshalParams(p.ProtocolParams, &params)
	desc := driver.PointDescriptor{PointID: p.ID, Address: p.Address, DataType: p.DataType, Params: params}

	pointID := p.ID
	handle, err := e.drv.Subscribe(desc, func(_ driver.PointDescriptor, v schema.Value, q schema.Quality) {
		e.deliverPush(pointID, v, q)
	})
	if err != nil {
		log.Warnf("polling: subscribe point %d: %v", p.ID, err)
		return
	}
	e.subs[p.ID] = handle
}

func (e *Engine) deliverPush(pointID int64, v schema.Value, q schema.Quality) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	tv := schema.TimestampedValue{PointID: pointID, Value: v, Quality: q, TimestampMs: time.Now().UnixMilli(), Sequence: seq}
	if e.onResults != nil {
		e.onResults([]schema.TimestampedValue{tv})
	}
}

// diffSubscriptions unsubscribes points no longer present/enabled and
// subscribes newly added ones, leaving unchanged points' subscriptions
// untouched.
func (e *Engine) diffSubscriptions(points []schema.DataPoint) {
	want := make(map[int64]schema.DataPoint, len(points))
	for _, p := range points {
		if p.Enabled && p.AccessMode != schema.AccessWrite {
			want[p.ID] = p
		}
	}

	for pointID, handle := range e.subs {
		if _, ok := want[pointID]; !ok {
			if err := e.drv.Unsubscribe(handle); err != nil {
				log.Warnf("polling: unsubscribe point %d: %v", pointID, err)
			}
			delete(e.subs, pointID)
		}
	}
	for pointID, p := range want {
		if _, ok := e.subs[pointID]; !ok {
			e.subscribeOne(p)
		}
	}
}

// Tick pops every Group whose deadline has elapsed, reads it, and
// reschedules it for now+IntervalMs. A Group that has fallen behind by
// more than one interval is rescheduled from "now" rather than from its
// missed deadline, so a stall never produces a catch-up storm of
// back-to-back reads once the driver recovers.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if e.suspended || isPushProtocol(e.drv.GetProtocolType()) {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	var due []*Group
	for e.queue.Len() > 0 && !e.queue[0].group.nextDeadline.After(now) {
		item := heap.Pop(&e.queue).(*deadlineItem)
		due = append(due, item.group)
	}
	e.mu.Unlock()

	for _, g := range due {
		e.pollGroup(ctx, g)

		e.mu.Lock()
		g.nextDeadline = now.Add(time.Duration(g.IntervalMs) * time.Millisecond)
		heap.Push(&e.queue, &deadlineItem{group: g})
		e.mu.Unlock()
	}
}

func (e *Engine) pollGroup(ctx context.Context, g *Group) {
	results, err := e.drv.ReadBatch(ctx, g.Descriptors)
	if err != nil && len(results) == 0 {
		g.failCount++
		if g.failCount >= failThreshold && e.onThreshold != nil {
			e.onThreshold()
		}
		return
	}

	byID := make(map[int64]schema.DataPoint, len(g.Points))
	for _, p := range g.Points {
		byID[p.ID] = p
	}

	allBad := true
	out := make([]schema.TimestampedValue, 0, len(results))
	nowMs := time.Now().UnixMilli()

	for _, r := range results {
		point, ok := byID[r.PointID]
		if !ok {
			continue
		}

		quality := r.Quality
		value := r.Value

		if quality == schema.QualityGood {
			allBad = false
			if raw, isNumeric := value.Float(); isNumeric {
				eng := point.ApplyScaling(raw)
				if !point.InRange(eng) {
					quality = schema.QualityOutOfRange
				}
				value = schema.NewFloatValue(eng)

				if e.suppressedByDeadband(g, point, eng) {
					continue
				}
				g.lastEmitted[point.ID] = eng
				g.lastEmitAt[point.ID] = time.Now()
			}
		}

		e.mu.Lock()
		e.seq++
		seq := e.seq
		e.mu.Unlock()

		out = append(out, schema.TimestampedValue{
			PointID:     r.PointID,
			Value:       value,
			Quality:     quality,
			TimestampMs: nowMs,
			Sequence:    seq,
		})
	}

	if allBad {
		g.failCount++
		if g.failCount >= failThreshold && e.onThreshold != nil {
			e.onThreshold()
		}
	} else {
		g.failCount = 0
	}

	if len(out) > 0 && e.onResults != nil {
		e.onResults(out)
	}
}

// suppressedByDeadband reports whether eng is within point's deadband of
// the last emitted value for that point — §4.4's per-point deadband
// filter. A point with Deadband <= 0 is never suppressed, and the first
// reading for a point is always emitted. A value that stays within the
// deadband is still forced through once the last emission for that point
// is no longer recent (older than 2x the group's polling interval), so a
// stable reading keeps being observed rather than going silent forever.
func (e *Engine) suppressedByDeadband(g *Group, point schema.DataPoint, eng float64) bool {
	if point.Deadband <= 0 {
		return false
	}
	last, ok := g.lastEmitted[point.ID]
	if !ok {
		return false
	}

	emittedAt, ok := g.lastEmitAt[point.ID]
	if ok {
		staleAfter := 2 * time.Duration(g.IntervalMs) * time.Millisecond
		if staleAfter > 0 && time.Since(emittedAt) > staleAfter {
			return false
		}
	}

	delta := eng - last
	if delta < 0 {
		delta = -delta
	}
	return delta < point.Deadband
}

// Suspend stops Tick from reading any group without closing the
// driver's connection — used by Worker.Pause.
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspended = true
}

// ResumeNow clears the suspension and bumps every group's deadline to
// now, so the next Tick reads immediately rather than waiting out
// whatever interval elapsed while paused.
func (e *Engine) ResumeNow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspended = false
	now := time.Now()
	for _, item := range e.queue {
		item.group.nextDeadline = now
	}
}
