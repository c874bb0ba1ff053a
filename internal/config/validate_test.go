// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import "testing"

// TestValidateAcceptsWellFormedInstance exercises only the success path:
// Validate calls log.Fatalf on a schema violation, so a failing instance
// would terminate the test binary rather than return an error.
func TestValidateAcceptsWellFormedInstance(t *testing.T) {
	Validate(configSchema, []byte(`{
		"collector-id": 1,
		"db-driver": "sqlite3",
		"db": "./var/pulseone.db",
		"log-level": "info"
	}`))
}
