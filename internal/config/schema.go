// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema validates the top-level collector config file. Kept as an
// inline string constant (rather than an embedded schema file) so the
// binary has no runtime dependency on an on-disk schemas/ directory.
var configSchema = `
{
  "type": "object",
  "properties": {
    "collector-id": {
      "description": "This collector's edge_server_id; devices are sharded to collectors by exact match on this value.",
      "type": "integer"
    },
    "tenant-id": {
      "description": "Tenant scope for export target lookups; one collector process serves exactly one tenant.",
      "type": "integer"
    },
    "db-driver": {
      "description": "Relational store dialect: sqlite3, mysql, postgres or mssql.",
      "type": "string",
      "enum": ["sqlite3", "mysql", "postgres", "mssql"]
    },
    "db": {
      "description": "Database DSN or file path (dialect-dependent).",
      "type": "string"
    },
    "nats": {
      "description": "Cache/pub-sub store connection.",
      "type": "object",
      "properties": {
        "address": { "type": "string" },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" }
      },
      "required": ["address"]
    },
    "failed-file-path": {
      "description": "Directory the failed-alarm disk queue writes JSON files into.",
      "type": "string"
    },
    "alarm-dir-path": {
      "description": "Optional directory for batched alarm files.",
      "type": "string"
    },
    "keep-failed-files-days": {
      "description": "Retention window for failed-alarm files.",
      "type": "integer"
    },
    "auto-cleanup-success-files": {
      "description": "Delete a failed-alarm file once its retry succeeds.",
      "type": "boolean"
    },
    "export-worker-pool-size": {
      "description": "Size of the export coordinator's dispatch pool. Defaults to min(8, cpu_count*2).",
      "type": "integer"
    },
    "log-level": {
      "description": "Process-wide log level.",
      "type": "string",
      "enum": ["debug", "info", "notice", "warn", "err", "crit"]
    },
    "log-levels": {
      "description": "Per-component log level overrides, e.g. {\"driver\":\"debug\"}.",
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "secret-master-key-env": {
      "description": "Name of the environment variable holding the base64 secret-manager master key.",
      "type": "string"
    },
    "interactive": {
      "description": "Run the interactive console instead of the daemon loop.",
      "type": "boolean"
    },
    "user": {
      "description": "Unprivileged user to drop to after startup, for a collector configured to bind a privileged port.",
      "type": "string"
    },
    "group": {
      "description": "Unprivileged group to drop to alongside user.",
      "type": "string"
    }
  },
  "required": ["collector-id", "db-driver", "db"]
}`
