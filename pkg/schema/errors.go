// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "fmt"

// DriverErrorClass classifies a protocol driver failure so the Worker
// state machine (the only place that decides retries) can act on it
// without inspecting protocol-specific detail.
type DriverErrorClass string

const (
	// DriverErrorTransient covers timeouts and connection resets. A failed
	// poll is counted per polling group, and the worker moves to
	// Reconnecting once a group reaches the polling package's fixed
	// failThreshold (5); DeviceSettings.MaxRetryCount is not consulted.
	DriverErrorTransient DriverErrorClass = "Transient"
	// DriverErrorProtocol covers malformed frames; stats only, no
	// state transition.
	DriverErrorProtocol DriverErrorClass = "Protocol"
	// DriverErrorFatal covers auth failure or unsupported operations;
	// moves the worker straight to Error.
	DriverErrorFatal DriverErrorClass = "Fatal"
)

// DriverError is the structured error every ProtocolDriver attaches to
// its last-error slot. Never thrown; always returned or polled.
type DriverError struct {
	Class   DriverErrorClass
	Code    string
	Message string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver error [%s/%s]: %s", e.Class, e.Code, e.Message)
}

// TransportErrorClass classifies an export target send failure.
type TransportErrorClass string

const (
	TransportRetryable    TransportErrorClass = "Retryable"
	TransportNonRetryable TransportErrorClass = "NonRetryable"
)

// TransportError is returned by target handlers (HTTP/S3/MQTT/FILE) for a
// failed send attempt.
type TransportError struct {
	Class      TransportErrorClass
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s, status=%d]: %s", e.Class, e.StatusCode, e.Message)
}

// ClassifyHTTPStatus maps an HTTP status code to a TransportErrorClass.
// Any 4xx is non-retryable; network errors, 5xx and timeouts are
// retryable (status 0 denotes a transport-level failure below HTTP).
func ClassifyHTTPStatus(status int) TransportErrorClass {
	if status >= 400 && status < 500 {
		return TransportNonRetryable
	}
	return TransportRetryable
}

// RepositoryError describes a storage-layer failure. The repositories in
// internal/repository do not construct it: they return (T, error) with
// the underlying sqlx/database error as it is.
type RepositoryError struct {
	Op      string
	Entity  string
	Message string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error: %s %s: %s", e.Op, e.Entity, e.Message)
}

// TransformerError signals a bad or missing payload template. Handling
// policy is to fall back to the transport-default template and log.
type TransformerError struct {
	TemplateID int64
	Message    string
}

func (e *TransformerError) Error() string {
	return fmt.Sprintf("transformer error (template %d): %s", e.TemplateID, e.Message)
}

// ConfigError signals an invalid target or device configuration. The
// affected entity is disabled at load time; a later config-reload may
// re-enable it once corrected.
type ConfigError struct {
	Target  string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %s", e.Target, e.Message)
}
