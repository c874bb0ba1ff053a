// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/smart-guard/pulseone-core/pkg/schema"
)

// fileTransportConfig is the decoded shape of ExportTarget.TransportConfig
// for a TargetFile target.
type fileTransportConfig struct {
	BasePath string `json:"base_path"`
}

var pathUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// FileHandler appends one JSON line per event to
// <base_path>/<point_name>.json, creating missing directories. Needs no
// client cache — os.OpenFile is cheap enough to do per call — but does
// need a mutex per path, since concurrent appends to the same file would
// otherwise interleave writes.
type FileHandler struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileHandler() *FileHandler {
	return &FileHandler{locks: make(map[string]*sync.Mutex)}
}

func (h *FileHandler) Initialize([]byte) error { return nil }

func (h *FileHandler) pathLock(path string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[path]
	if !ok {
		l = &sync.Mutex{}
		h.locks[path] = l
	}
	return l
}

func (h *FileHandler) appendLine(target schema.ExportTarget, name string, payload []byte) schema.TargetSendResult {
	var cfg fileTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return h.errorResult(target, fmt.Sprintf("decoding transport config: %v", err))
	}
	if cfg.BasePath == "" {
		return h.errorResult(target, "base_path is required")
	}

	safeName := pathUnsafe.ReplaceAllString(name, "_")
	path := filepath.Join(cfg.BasePath, safeName+".json")

	lock := h.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return h.errorResult(target, fmt.Sprintf("creating base_path: %v", err))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return h.errorResult(target, fmt.Sprintf("opening %s: %v", path, err))
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return h.errorResult(target, fmt.Sprintf("writing %s: %v", path, err))
	}

	return schema.TargetSendResult{
		TargetType: target.Kind, TargetName: target.Name, Success: true, StatusCode: 200,
		SentPayload: schema.TruncateForLog(string(payload)), ResponseBody: path,
		AttemptCount: 1, LatencyMs: time.Since(start).Milliseconds(),
	}
}

// SendPayload appends an already-rendered payload under the fixed name
// "alarm.json" within the target's base_path.
func (h *FileHandler) SendPayload(ctx context.Context, payload []byte, target schema.ExportTarget) schema.TargetSendResult {
	return h.appendLine(target, "alarm", payload)
}

func (h *FileHandler) SendAlarm(ctx context.Context, alarm schema.Alarm, target schema.ExportTarget) schema.TargetSendResult {
	payload, err := json.Marshal(alarm)
	if err != nil {
		return h.errorResult(target, fmt.Sprintf("marshaling alarm: %v", err))
	}
	name := alarm.PointName
	if name == "" {
		name = strconv.FormatInt(alarm.PointID, 10)
	}
	return h.appendLine(target, name, payload)
}

func (h *FileHandler) SendValueBatch(ctx context.Context, values []schema.TimestampedValue, target schema.ExportTarget) []schema.TargetSendResult {
	results := make([]schema.TargetSendResult, len(values))
	for i, v := range values {
		payload, err := json.Marshal(v)
		if err != nil {
			results[i] = h.errorResult(target, fmt.Sprintf("marshaling value: %v", err))
			continue
		}
		results[i] = h.appendLine(target, strconv.FormatInt(v.PointID, 10), payload)
	}
	return results
}

func (h *FileHandler) errorResult(target schema.ExportTarget, msg string) schema.TargetSendResult {
	return schema.TargetSendResult{TargetType: target.Kind, TargetName: target.Name, Success: false, ErrorMessage: msg}
}

func (h *FileHandler) TestConnection(ctx context.Context, target schema.ExportTarget) bool {
	var cfg fileTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false
	}
	return os.MkdirAll(cfg.BasePath, 0o755) == nil
}

func (h *FileHandler) ValidateConfig(target schema.ExportTarget) (bool, []string) {
	var cfg fileTransportConfig
	if err := json.Unmarshal(target.TransportConfig, &cfg); err != nil {
		return false, []string{fmt.Sprintf("invalid transport_config: %v", err)}
	}
	if cfg.BasePath == "" {
		return false, []string{"base_path is required"}
	}
	return true, nil
}

func (h *FileHandler) Cleanup() {}

func (h *FileHandler) GetStatus() map[string]interface{} {
	return map[string]interface{}{"kind": schema.TargetFile}
}
