// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker implements the per-device state machine (C3): the only
// place retries and reconnects are decided. Drivers and polling groups
// report outcomes; they never loop on their own.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smart-guard/pulseone-core/internal/driver"
	"github.com/smart-guard/pulseone-core/internal/polling"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// State is one of the nine per-device states named in §4.3.
type State string

const (
	StateStopped       State = "Stopped"
	StateStarting      State = "Starting"
	StateRunning       State = "Running"
	StateReconnecting  State = "Reconnecting"
	StateDeviceOffline State = "DeviceOffline"
	StatePaused        State = "Paused"
	StateMaintenance   State = "Maintenance"
	StateError         State = "Error"
	StateStopping      State = "Stopping"
)

// offlineThreshold is the number of consecutive failed reconnect attempts
// after which a Worker gives up and moves to DeviceOffline instead of
// retrying forever.
const offlineThreshold = 10

// Status is the external, read-only view GetState()/GetStatus() return —
// never the Worker's internal mutable fields directly.
type Status struct {
	DeviceID     int64
	State        State
	LastError    string
	ConnectFails int
	UpdatedAt    time.Time
}

// OutputFunc is how a Worker hands a TimestampedValue to the rest of the
// system (the event dispatcher's in-process ingress, §4.6). Must not
// block for long — polling group emission happens on the hot path.
type OutputFunc func(schema.TimestampedValue)

// AlarmFunc is how a Worker reports a device-level event (online/offline
// transitions) that the export path cares about.
type AlarmFunc func(schema.Alarm)

// Worker owns one Device's driver, polling group engine and state
// machine. All mutable state is behind mu; GetState/GetStatus copy out.
type Worker struct {
	mu    sync.RWMutex
	state State

	device   schema.Device
	settings schema.DeviceSettings
	points   []schema.DataPoint

	drv     driver.ProtocolDriver
	engine  *polling.Engine
	emit    OutputFunc
	alarm   AlarmFunc

	backoff      time.Duration
	connectFails int
	lastErr      string

	controlCh chan controlOp
	stopCh    chan struct{}
	doneCh    chan struct{}

	paused bool
}

type controlOp struct {
	pointID int64
	value   schema.Value
	result  chan error
}

// New builds an uninitialized-but-configured Worker: the factory (C5)
// calls this after loading the Device, DeviceSettings and DataPoints and
// choosing the protocol driver.
func New(device schema.Device, settings schema.DeviceSettings, points []schema.DataPoint, drv driver.ProtocolDriver, emit OutputFunc, alarm AlarmFunc) *Worker {
	w := &Worker{
		state:     StateStopped,
		device:    device,
		settings:  settings,
		points:    points,
		drv:       drv,
		emit:      emit,
		alarm:     alarm,
		controlCh: make(chan controlOp, 32),
	}
	w.engine = polling.NewEngine(points, settings, drv, w.handleReadResults, w.handleThresholdExceeded)
	return w
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev != s {
		log.Debugf("worker %d: %s -> %s", w.device.ID, prev, s)
	}
}

// GetState returns the current state only.
func (w *Worker) GetState() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// GetStatus returns the full external status snapshot.
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		DeviceID:     w.device.ID,
		State:        w.state,
		LastError:    w.lastErr,
		ConnectFails: w.connectFails,
		UpdatedAt:    time.Now(),
	}
}

// Start is asynchronous: it spawns the worker's threads and returns once
// the Starting transition has begun, not once connected.
func (w *Worker) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	current := w.GetState()
	if current != StateStopped && current != StateError {
		done <- fmt.Errorf("worker %d: cannot Start from state %s", w.device.ID, current)
		return done
	}

	w.setState(StateStarting)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.backoff = time.Duration(w.settings.RetryIntervalMs) * time.Millisecond
	if w.backoff <= 0 {
		w.backoff = time.Second
	}

	if err := w.drv.Initialize(ctx, w.device.Endpoint, w.device.ConfigJSON); err != nil {
		w.recordError(err)
		w.setState(StateError)
		done <- err
		return done
	}

	go w.run(ctx, done)
	return done
}

// run is the Worker's supervising goroutine: connect, transition to
// Running or Reconnecting, then loop the polling engine until Stop.
func (w *Worker) run(ctx context.Context, startDone chan<- error) {
	defer close(w.doneCh)

	if err := w.connectWithTransition(ctx); err != nil {
		startDone <- nil // Start itself succeeded; connection outcome is tracked via state
	} else {
		startDone <- nil
	}

	go w.controlLoop(ctx)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.teardown()
			return
		case <-ctx.Done():
			w.teardown()
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// connectWithTransition performs one connect attempt and applies the
// Starting/Reconnecting transition table from §4.3. A Fatal DriverError
// moves the worker straight to Error without counting a connect failure.
func (w *Worker) connectWithTransition(ctx context.Context) error {
	err := w.drv.Connect(ctx)
	if err == nil {
		w.mu.Lock()
		w.connectFails = 0
		w.mu.Unlock()
		w.setState(StateRunning)
		if w.alarm != nil {
			w.alarm(w.onlineAlarm())
		}
		return nil
	}

	w.recordError(err)
	var de *schema.DriverError
	if errors.As(err, &de) && de.Class == schema.DriverErrorFatal {
		w.setState(StateError)
		return err
	}
	w.mu.Lock()
	w.connectFails++
	fails := w.connectFails
	w.mu.Unlock()

	if fails >= offlineThreshold {
		w.setState(StateDeviceOffline)
	} else {
		w.setState(StateReconnecting)
	}
	return err
}

// tick drives the per-state periodic behavior: Reconnecting waits out its
// backoff and retries; Running pumps the polling engine.
func (w *Worker) tick(ctx context.Context) {
	switch w.GetState() {
	case StateRunning:
		w.engine.Tick(ctx)

	case StateReconnecting:
		w.mu.Lock()
		backoff := w.backoff
		w.mu.Unlock()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-w.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}

		if err := w.connectWithTransition(ctx); err != nil {
			w.mu.Lock()
			w.backoff = time.Duration(float64(w.backoff) * w.settings.BackoffMultiplier)
			maxBackoff := time.Duration(w.settings.MaxBackoffTimeMs) * time.Millisecond
			if maxBackoff > 0 && w.backoff > maxBackoff {
				w.backoff = maxBackoff
			}
			w.mu.Unlock()
		} else {
			w.mu.Lock()
			w.backoff = time.Duration(w.settings.RetryIntervalMs) * time.Millisecond
			w.mu.Unlock()
		}

	case StatePaused, StateStopping, StateStopped, StateDeviceOffline, StateMaintenance, StateError, StateStarting:
		// no periodic work in these states
	}
}

// handleReadResults is the polling engine's sink for each tick's batch —
// forwards every value downstream, whatever its quality. Repeated comm
// failure is raised separately through handleThresholdExceeded.
func (w *Worker) handleReadResults(values []schema.TimestampedValue) {
	for _, v := range values {
		if w.emit != nil {
			w.emit(v)
		}
	}
}

// handleThresholdExceeded is called by the polling engine when a group's
// fail counter reaches its threshold (§4.4 step 1) — raises to the state
// machine exactly as spec'd.
func (w *Worker) handleThresholdExceeded() {
	if w.GetState() == StateRunning {
		w.recordError(fmt.Errorf("polling group exceeded fail threshold"))
		w.setState(StateReconnecting)
	}
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
}

// controlLoop serves WriteDataPoint requests on a dedicated goroutine so
// writes never block the polling loop.
func (w *Worker) controlLoop(ctx context.Context) {
	for {
		select {
		case <-w.stopCh:
			return
		case op := <-w.controlCh:
			op.result <- w.doWrite(ctx, op.pointID, op.value)
		}
	}
}

func (w *Worker) doWrite(ctx context.Context, pointID int64, value schema.Value) error {
	var point *schema.DataPoint
	for i := range w.points {
		if w.points[i].ID == pointID {
			point = &w.points[i]
			break
		}
	}
	if point == nil {
		return fmt.Errorf("worker %d: no such point %d", w.device.ID, pointID)
	}
	if point.AccessMode == schema.AccessRead {
		return fmt.Errorf("worker %d: point %d is read-only", w.device.ID, pointID)
	}

	desc := driver.PointDescriptor{PointID: point.ID, Address: point.Address, DataType: point.DataType}
	return w.drv.WriteSingle(ctx, desc, value)
}

// WriteDataPoint enqueues a write on the control thread and blocks for
// its result; polling continues concurrently on the scheduler thread.
func (w *Worker) WriteDataPoint(ctx context.Context, pointID int64, value schema.Value) error {
	result := make(chan error, 1)
	select {
	case w.controlCh <- controlOp{pointID: pointID, value: value, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends polling while keeping the driver session open; Resume
// bumps deadlines to now per §4.4.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
	w.setState(StatePaused)
	w.engine.Suspend()
}

func (w *Worker) Resume() {
	prior := StateRunning
	if w.GetState() == StateDeviceOffline {
		prior = StateReconnecting
	}
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.setState(prior)
	w.engine.ResumeNow()
}

// Stop disconnects and joins every thread the Worker owns, with a bounded
// wait per §5's cancellation policy.
func (w *Worker) Stop() <-chan error {
	done := make(chan error, 1)
	w.setState(StateStopping)

	if w.stopCh != nil {
		close(w.stopCh)
	}

	go func() {
		select {
		case <-w.doneCh:
		case <-time.After(5 * time.Second):
			log.Warnf("worker %d: force-abandoning threads after 5s", w.device.ID)
		}
		w.setState(StateStopped)
		done <- nil
	}()

	return done
}

func (w *Worker) teardown() {
	disconnectDone := make(chan struct{})
	go func() {
		if err := w.drv.Disconnect(); err != nil {
			log.Warnf("worker %d: disconnect: %v", w.device.ID, err)
		}
		close(disconnectDone)
	}()
	select {
	case <-disconnectDone:
	case <-time.After(5 * time.Second):
		log.Warnf("worker %d: disconnect did not complete within 5s", w.device.ID)
	}
}

// CheckConnection reports the driver's current connection state without
// forcing a reconnect attempt.
func (w *Worker) CheckConnection() bool {
	return w.drv.IsConnected()
}

// ReloadDataPoints pushes a new point set into the polling engine;
// state-preserving — a Running worker stays Running.
func (w *Worker) ReloadDataPoints(points []schema.DataPoint) {
	w.mu.Lock()
	w.points = points
	w.mu.Unlock()
	w.engine.Reload(points, w.settings)
}

// ReloadSettings pushes new DeviceSettings without restarting the driver.
func (w *Worker) ReloadSettings(settings schema.DeviceSettings) {
	w.mu.Lock()
	w.settings = settings
	w.mu.Unlock()
	w.engine.Reload(w.points, settings)
}

func (w *Worker) onlineAlarm() schema.Alarm {
	return schema.Alarm{
		SiteID:      w.device.SiteID,
		PointName:   w.device.Name,
		Description: "device online",
		Status:      "normal",
		TimestampMs: time.Now().UnixMilli(),
	}
}

// DeviceID exposes the owning device's id, used as the WorkerRegistry map
// key's source of truth.
func (w *Worker) DeviceID() int64 { return w.device.ID }
