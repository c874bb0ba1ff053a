// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"os"

	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/nats"
)

// NatsConfig is a type alias so callers of config.Keys don't need to
// import pkg/nats just to read its fields.
type NatsConfig = nats.NatsConfig

// CollectorConfig is the top-level configuration for a single collector
// process. Unlike the teacher's web-facing ProgramConfig this has no UI
// defaults or cluster list; it describes one edge collector's identity,
// storage, and export tuning.
type CollectorConfig struct {
	CollectorID             int64             `json:"collector-id"`
	TenantID                int64             `json:"tenant-id"`
	DBDriver                string            `json:"db-driver"`
	DB                      string            `json:"db"`
	Nats                    NatsConfig        `json:"nats"`
	FailedFilePath          string            `json:"failed-file-path"`
	AlarmDirPath            string            `json:"alarm-dir-path"`
	KeepFailedFilesDays     int               `json:"keep-failed-files-days"`
	AutoCleanupSuccessFiles bool              `json:"auto-cleanup-success-files"`
	ExportWorkerPoolSize    int               `json:"export-worker-pool-size"`
	LogLevel                string            `json:"log-level"`
	LogLevels               map[string]string `json:"log-levels"`
	SecretMasterKeyEnv      string            `json:"secret-master-key-env"`
	Interactive             bool              `json:"interactive"`
	User                    string            `json:"user"`
	Group                   string            `json:"group"`
}

// Keys holds the process-wide configuration, populated by Init. Per §9's
// design notes this global is a convenience binding for main only; tests
// construct and pass a CollectorConfig explicitly instead of relying on it.
var Keys = CollectorConfig{
	DBDriver:                "sqlite3",
	DB:                      "./var/pulseone.db",
	FailedFilePath:          "./var/failed-alarms",
	KeepFailedFilesDays:     7,
	AutoCleanupSuccessFiles: true,
	ExportWorkerPoolSize:    0, // 0 means min(8, cpu_count*2) at startup
	LogLevel:                "info",
}

// Init reads flagConfigFile, validates it against configSchema, expands
// ${VAR} environment references in every string value, and decodes it
// into Keys. A missing file is not fatal (defaults apply); a malformed or
// schema-invalid one is, since this is an initialization failure per the
// error handling design (§7) — the only class of error allowed to reach
// main() and exit(1).
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	Validate(configSchema, raw)

	expanded, err := expandEnvInJSON(raw)
	if err != nil {
		log.Fatalf("config: expanding ${VAR} references: %v", err)
	}

	dec := json.NewDecoder(expanded)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}

	if Keys.CollectorID == 0 {
		log.Fatal("config: collector-id must be set and non-zero")
	}
}
