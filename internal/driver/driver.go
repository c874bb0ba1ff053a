// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package driver implements the protocol driver abstraction: one uniform
// surface over Modbus, BACnet, MQTT and OPC-UA field protocols. Workers
// never talk to a transport library directly — they hold a ProtocolDriver
// and the state machine decides when to call Connect/ReadBatch/WriteSingle.
package driver

import (
	"context"
	"fmt"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// PointDescriptor is the protocol-native address of one DataPoint, built
// once per worker reload from schema.DataPoint.Address/DataType/
// ProtocolParams rather than re-parsed on every poll.
type PointDescriptor struct {
	PointID  int64
	Address  int
	DataType schema.DataType
	Params   map[string]string // protocol-specific extras (e.g. BACnet object type, MQTT sub-topic suffix)
}

// AsyncCallback is how a driver surfaces traffic it did not itself
// request: BACnet I-Am, an MQTT message on a subscribed topic, a COV
// notification. Drivers call it from their own read goroutine; callers
// must not block inside it for long.
type AsyncCallback func(point PointDescriptor, value schema.Value, quality schema.Quality)

// SubscriptionHandle identifies one active Subscribe call, passed back to
// Unsubscribe.
type SubscriptionHandle string

// ReadResult is one row of a ReadBatch response: a batch read never fails
// as a whole, so each point carries its own quality.
type ReadResult struct {
	PointID int64
	Value   schema.Value
	Quality schema.Quality
}

// ProtocolDriver is implemented once per protocol (modbus, bacnet, mqtt,
// opcua) and is otherwise opaque to the worker state machine: the state
// machine decides *when* to call Connect/Disconnect, the driver decides
// *how*.
type ProtocolDriver interface {
	// Initialize parses the device's endpoint/config JSON into the
	// driver's internal connection parameters. Called once, before the
	// first Connect.
	Initialize(ctx context.Context, endpoint string, configJSON []byte) error

	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	ReadSingle(ctx context.Context, point PointDescriptor) (schema.Value, schema.Quality, error)
	// Once connected, ReadBatch does not fail as a whole; a point that
	// could not be read comes back with Quality Bad/CommFailure rather
	// than being omitted. The Modbus and BACnet drivers return an error
	// and no results when not connected.
	ReadBatch(ctx context.Context, points []PointDescriptor) ([]ReadResult, error)
	WriteSingle(ctx context.Context, point PointDescriptor, value schema.Value) error

	// Subscribe registers cb for asynchronous delivery on point and
	// returns a handle for Unsubscribe. Protocols without native
	// push/COV support return ErrSubscriptionUnsupported.
	Subscribe(point PointDescriptor, cb AsyncCallback) (SubscriptionHandle, error)
	Unsubscribe(handle SubscriptionHandle) error

	GetProtocolType() string

	// LastError returns the last DriverError recorded by this driver, or
	// nil if none — drivers never panic or throw across this boundary.
	LastError() *schema.DriverError
}

// ErrSubscriptionUnsupported is returned by Subscribe on protocols with no
// push/COV mechanism (plain Modbus).
var ErrSubscriptionUnsupported = fmt.Errorf("driver: subscribe not supported by this protocol")

// New constructs the ProtocolDriver for protocolType (one of the
// schema.Protocol* constants). Returns an error for an unrecognized type
// rather than a nil driver — the set of protocol kinds is closed (§9
// design notes: tagged variant, not an open plugin interface).
func New(protocolType string) (ProtocolDriver, error) {
	switch protocolType {
	case schema.ProtocolModbusTCP, schema.ProtocolModbusRTU:
		return NewModbusDriver(protocolType), nil
	case schema.ProtocolBACnetIP:
		return NewBACnetDriver(), nil
	case schema.ProtocolMQTT:
		return NewMQTTDriver(), nil
	case schema.ProtocolOPCUA:
		return NewOPCUADriver(), nil
	default:
		return nil, &schema.DriverError{
			Class:   schema.DriverErrorFatal,
			Code:    "UNKNOWN_PROTOCOL",
			Message: fmt.Sprintf("no driver registered for protocol type %q", protocolType),
		}
	}
}

// baseDriver holds the last-error slot and connected flag shared by every
// concrete driver, avoiding four copies of the same bookkeeping.
type baseDriver struct {
	connected bool
	lastErr   *schema.DriverError
}

func (b *baseDriver) IsConnected() bool { return b.connected }

func (b *baseDriver) LastError() *schema.DriverError { return b.lastErr }

func (b *baseDriver) setError(class schema.DriverErrorClass, code, message string) error {
	b.lastErr = &schema.DriverError{Class: class, Code: code, Message: message}
	return b.lastErr
}
