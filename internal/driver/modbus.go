// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// modbusConfig is the decoded shape of Device.ConfigJSON for a
// MODBUS_TCP/RTU device.
type modbusConfig struct {
	UnitID         uint8  `json:"unit_id"`
	TimeoutMs      int    `json:"timeout_ms"`
	RegisterStride int    `json:"register_stride"` // default 50 for grouping, not used by the driver itself
	SerialMode     string `json:"serial_mode"`      // "RTU" only meaningful for MODBUS_RTU
	BaudRate       int    `json:"baud_rate"`
}

// registerSpec decodes a PointDescriptor's protocol params: which Modbus
// table (holding/input/coil/discrete) the address lives in.
type registerSpec struct {
	table string // "holding", "input", "coil", "discrete"
}

func parseRegisterSpec(params map[string]string) registerSpec {
	table := params["table"]
	if table == "" {
		table = "holding"
	}
	return registerSpec{table: table}
}

// maxRegistersPerRead caps a single ReadRegisters call at Modbus FC03/04's
// protocol limit (125 16-bit registers per PDU).
const maxRegistersPerRead = 125

// ModbusDriver implements ProtocolDriver over github.com/simonvetter/modbus,
// the concrete analogue of the spec's "libmodbus" black box. Modbus has no
// COV/push mechanism, so Subscribe always returns
// ErrSubscriptionUnsupported.
type ModbusDriver struct {
	baseDriver
	protocolType string
	mu           sync.Mutex
	client       *modbus.ModbusClient
	unitID       uint8
	endpoint     string
}

func NewModbusDriver(protocolType string) *ModbusDriver {
	return &ModbusDriver{protocolType: protocolType}
}

func (d *ModbusDriver) Initialize(_ context.Context, endpoint string, configJSON []byte) error {
	var cfg modbusConfig
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return d.setError(schema.DriverErrorFatal, "BAD_CONFIG", err.Error())
		}
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = 1
	}
	d.unitID = cfg.UnitID
	d.endpoint = endpoint
	return nil
}

// modbusURL builds the "tcp://host:port" or "rtu:///dev/ttyUSB0" URL the
// client library expects, from Device.Endpoint.
func (d *ModbusDriver) modbusURL() string {
	switch d.protocolType {
	case schema.ProtocolModbusRTU:
		return fmt.Sprintf("rtu://%s", d.endpoint)
	default:
		return fmt.Sprintf("tcp://%s", d.endpoint)
	}
}

func (d *ModbusDriver) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     d.modbusURL(),
		Timeout: 3 * time.Second,
	})
	if err != nil {
		return d.setError(schema.DriverErrorTransient, "CLIENT_INIT", err.Error())
	}

	if err := client.Open(); err != nil {
		return d.setError(schema.DriverErrorTransient, "CONNECT", err.Error())
	}
	client.SetUnitId(d.unitID)

	d.client = client
	d.connected = true
	return nil
}

func (d *ModbusDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		d.connected = false
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.connected = false
	if err != nil {
		return d.setError(schema.DriverErrorTransient, "DISCONNECT", err.Error())
	}
	return nil
}

func (d *ModbusDriver) ReadSingle(ctx context.Context, point PointDescriptor) (schema.Value, schema.Quality, error) {
	results, err := d.ReadBatch(ctx, []PointDescriptor{point})
	if err != nil {
		return schema.Value{}, schema.QualityBad, err
	}
	if len(results) == 0 {
		return schema.Value{}, schema.QualityBad, d.setError(schema.DriverErrorProtocol, "EMPTY_RESULT", "read returned no rows")
	}
	return results[0].Value, results[0].Quality, nil
}

// ReadBatch groups points by register table, splits each group into
// chunks of at most maxRegistersPerRead, and reads contiguous runs — a
// point that falls outside what could be fetched comes back Bad rather
// than failing the whole call.
func (d *ModbusDriver) ReadBatch(_ context.Context, points []PointDescriptor) ([]ReadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil, d.setError(schema.DriverErrorTransient, "NOT_CONNECTED", "modbus client not connected")
	}

	results := make([]ReadResult, 0, len(points))
	byTable := map[string][]PointDescriptor{}
	for _, p := range points {
		spec := parseRegisterSpec(p.Params)
		byTable[spec.table] = append(byTable[spec.table], p)
	}

	for table, pts := range byTable {
		for _, chunk := range chunkByStride(pts, maxRegistersPerRead) {
			results = append(results, d.readChunk(table, chunk)...)
		}
	}
	return results, nil
}

// chunkByStride splits points already sorted by address (by the poll
// group builder) into runs no longer than maxSpan registers wide.
func chunkByStride(points []PointDescriptor, maxSpan int) [][]PointDescriptor {
	if len(points) == 0 {
		return nil
	}
	var chunks [][]PointDescriptor
	start := 0
	for i := 1; i <= len(points); i++ {
		if i == len(points) || points[i].Address-points[start].Address >= maxSpan {
			chunks = append(chunks, points[start:i])
			start = i
		}
	}
	return chunks
}

func (d *ModbusDriver) readChunk(table string, points []PointDescriptor) []ReadResult {
	if len(points) == 0 {
		return nil
	}
	minAddr, maxAddr := points[0].Address, points[0].Address
	for _, p := range points {
		if p.Address < minAddr {
			minAddr = p.Address
		}
		if p.Address > maxAddr {
			maxAddr = p.Address
		}
	}
	qty := uint16(maxAddr-minAddr) + 1

	results := make([]ReadResult, 0, len(points))

	switch table {
	case "coil":
		bits, err := d.client.ReadCoils(uint16(minAddr), qty)
		if err != nil {
			return badQualityResults(points, err)
		}
		for _, p := range points {
			idx := p.Address - minAddr
			if idx < 0 || idx >= len(bits) {
				results = append(results, ReadResult{PointID: p.PointID, Quality: schema.QualityBad})
				continue
			}
			results = append(results, ReadResult{PointID: p.PointID, Value: schema.NewBoolValue(bits[idx]), Quality: schema.QualityGood})
		}

	case "discrete":
		bits, err := d.client.ReadDiscreteInputs(uint16(minAddr), qty)
		if err != nil {
			return badQualityResults(points, err)
		}
		for _, p := range points {
			idx := p.Address - minAddr
			if idx < 0 || idx >= len(bits) {
				results = append(results, ReadResult{PointID: p.PointID, Quality: schema.QualityBad})
				continue
			}
			results = append(results, ReadResult{PointID: p.PointID, Value: schema.NewBoolValue(bits[idx]), Quality: schema.QualityGood})
		}

	case "input":
		regs, err := d.client.ReadRegisters(uint16(minAddr), qty, modbus.INPUT_REGISTER)
		if err != nil {
			return badQualityResults(points, err)
		}
		results = append(results, decodeRegisters(points, minAddr, regs)...)

	default: // holding
		regs, err := d.client.ReadRegisters(uint16(minAddr), qty, modbus.HOLDING_REGISTER)
		if err != nil {
			return badQualityResults(points, err)
		}
		results = append(results, decodeRegisters(points, minAddr, regs)...)
	}

	return results
}

func decodeRegisters(points []PointDescriptor, minAddr int, regs []uint16) []ReadResult {
	results := make([]ReadResult, 0, len(points))
	for _, p := range points {
		idx := p.Address - minAddr
		if idx < 0 || idx >= len(regs) {
			results = append(results, ReadResult{PointID: p.PointID, Quality: schema.QualityBad})
			continue
		}
		var v schema.Value
		switch p.DataType {
		case schema.DataTypeFloat:
			v = schema.NewFloatValue(float64(int16(regs[idx])))
		default:
			v = schema.NewIntValue(int64(regs[idx]))
		}
		results = append(results, ReadResult{PointID: p.PointID, Value: v, Quality: schema.QualityGood})
	}
	return results
}

func badQualityResults(points []PointDescriptor, err error) []ReadResult {
	results := make([]ReadResult, 0, len(points))
	for _, p := range points {
		results = append(results, ReadResult{PointID: p.PointID, Quality: schema.QualityCommFailure})
	}
	_ = err
	return results
}

func (d *ModbusDriver) WriteSingle(_ context.Context, point PointDescriptor, value schema.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return d.setError(schema.DriverErrorTransient, "NOT_CONNECTED", "modbus client not connected")
	}

	spec := parseRegisterSpec(point.Params)
	switch spec.table {
	case "coil":
		b, _ := value.Native().(bool)
		if err := d.client.WriteCoil(uint16(point.Address), b); err != nil {
			return d.setError(schema.DriverErrorTransient, "WRITE_COIL", err.Error())
		}
	default:
		f, _ := value.Float()
		if err := d.client.WriteRegister(uint16(point.Address), uint16(int64(f))); err != nil {
			return d.setError(schema.DriverErrorTransient, "WRITE_REGISTER", err.Error())
		}
	}
	return nil
}

func (d *ModbusDriver) Subscribe(PointDescriptor, AsyncCallback) (SubscriptionHandle, error) {
	return "", ErrSubscriptionUnsupported
}

func (d *ModbusDriver) Unsubscribe(SubscriptionHandle) error {
	return ErrSubscriptionUnsupported
}

func (d *ModbusDriver) GetProtocolType() string { return d.protocolType }
