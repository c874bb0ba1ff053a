// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package handler implements the Target Handler Framework (C7): one
// stateless ITargetHandler per transport kind (HTTP/S3/MQTT/FILE),
// backed by a shared ClientCacheManager for expensive per-target client
// construction.
package handler

import (
	"context"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// ITargetHandler is implemented once per schema.TargetKind. Handlers
// hold no per-call state: everything needed to send is in target's
// TransportConfig, resolved fresh (or pulled from the ClientCacheManager)
// on every call, so one handler instance is safe to share across every
// target of its kind.
type ITargetHandler interface {
	Initialize(config []byte) error
	SendAlarm(ctx context.Context, alarm schema.Alarm, target schema.ExportTarget) schema.TargetSendResult
	SendValueBatch(ctx context.Context, values []schema.TimestampedValue, target schema.ExportTarget) []schema.TargetSendResult
	// SendPayload delivers an already-rendered payload — the Export
	// Coordinator uses this for template-rendered alarms (C8) instead of
	// SendAlarm, which marshals the alarm struct directly.
	SendPayload(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult
	TestConnection(ctx context.Context, target schema.ExportTarget) bool
	ValidateConfig(target schema.ExportTarget) (bool, []string)
	Cleanup()
	GetStatus() map[string]interface{}
}

// New constructs the handler for kind. Closed switch, matching C2's
// driver.New: the set of transport kinds is enumerated in schema, not
// discovered via a plugin registry (§9 design notes).
func New(kind schema.TargetKind, cache *ClientCacheManager, secrets SecretResolver) (ITargetHandler, error) {
	switch kind {
	case schema.TargetHTTP:
		return NewHTTPHandler(cache, secrets), nil
	case schema.TargetS3:
		return NewS3Handler(cache, secrets), nil
	case schema.TargetMQTT:
		return NewMQTTHandler(cache, secrets), nil
	case schema.TargetFile:
		return NewFileHandler(), nil
	default:
		return nil, &schema.ConfigError{Target: string(kind), Message: "unknown export target kind"}
	}
}

// SecretResolver is the subset of *secret.Manager handlers need, kept as
// an interface so internal/export/handler never imports internal/secret
// directly.
type SecretResolver interface {
	Resolve(s string) (string, error)
}
