// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coordinator

import (
	"context"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

// TestTargets calls TestConnection on every enabled target, for the
// collector's --test-connection/--test-all CLI modes (SUPPLEMENTED
// FEATURES #4's CSP-Gateway-style manual test-export surface).
func (c *Coordinator) TestTargets(ctx context.Context) map[string]bool {
	targets, err := c.targets.FindEnabled(c.tenantID)
	if err != nil {
		log.Warnf("export: test-connection: listing targets: %v", err)
		return nil
	}

	results := make(map[string]bool, len(targets))
	for _, target := range targets {
		h, ok := c.handlers[target.Kind]
		if !ok {
			results[target.Name] = false
			continue
		}
		results[target.Name] = h.TestConnection(ctx, target)
	}
	return results
}
