// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "fmt"

// DataType is the wire/storage type of a DataPoint's value.
type DataType string

const (
	DataTypeBool    DataType = "bool"
	DataTypeInt16   DataType = "int16"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt32   DataType = "int32"
	DataTypeFloat   DataType = "float"
	DataTypeString  DataType = "string"
)

// AccessMode constrains which driver operations a DataPoint permits.
type AccessMode string

const (
	AccessRead      AccessMode = "read"
	AccessWrite     AccessMode = "write"
	AccessReadWrite AccessMode = "read_write"
)

// Quality is the confidence tag carried alongside every Value.
type Quality string

const (
	QualityGood        Quality = "Good"
	QualityUncertain    Quality = "Uncertain"
	QualityBad          Quality = "Bad"
	QualityCommFailure  Quality = "CommFailure"
	QualityOutOfRange   Quality = "OutOfRange"
	QualitySensorFault  Quality = "SensorFault"
)

// Value is the sum type a driver hands back for a single point read.
// Exactly one of the typed accessors is meaningful; which one is
// determined by Kind.
type Value struct {
	Kind  DataType
	Bool  bool
	I64   int64
	F64   float64
	Str   string
	Bytes []byte
}

func NewBoolValue(v bool) Value    { return Value{Kind: DataTypeBool, Bool: v} }
func NewIntValue(v int64) Value    { return Value{Kind: DataTypeInt32, I64: v} }
func NewFloatValue(v float64) Value { return Value{Kind: DataTypeFloat, F64: v} }
func NewStringValue(v string) Value { return Value{Kind: DataTypeString, Str: v} }
func NewBytesValue(v []byte) Value  { return Value{Kind: "bytes", Bytes: v} }

// Float returns the value coerced to float64, for scaling/deadband math.
// Non-numeric kinds return 0, false.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case DataTypeFloat:
		return v.F64, true
	case DataTypeInt16, DataTypeUint16, DataTypeInt32:
		return float64(v.I64), true
	case DataTypeBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Native returns the value as a plain Go interface{}, used by the payload
// transformer when substituting a bare {{var}} leaf.
func (v Value) Native() interface{} {
	switch v.Kind {
	case DataTypeBool:
		return v.Bool
	case DataTypeFloat:
		return v.F64
	case DataTypeInt16, DataTypeUint16, DataTypeInt32:
		return v.I64
	case DataTypeString:
		return v.Str
	default:
		return v.Bytes
	}
}

func (v Value) String() string {
	switch v.Kind {
	case DataTypeBool:
		return fmt.Sprintf("%v", v.Bool)
	case DataTypeFloat:
		return fmt.Sprintf("%v", v.F64)
	case DataTypeInt16, DataTypeUint16, DataTypeInt32:
		return fmt.Sprintf("%v", v.I64)
	case DataTypeString:
		return v.Str
	default:
		return fmt.Sprintf("%x", v.Bytes)
	}
}

// TimestampedValue is the unit of data flow between a Worker's polling
// group and everything downstream of it. Value-copied across every
// queue boundary; never shared by pointer.
type TimestampedValue struct {
	PointID     int64
	Value       Value
	Quality     Quality
	TimestampMs int64
	Sequence    uint64
}
