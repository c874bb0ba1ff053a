// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command collector is the PulseOne edge collector daemon: it polls
// field devices over their configured protocols, caches their current
// values, and fans alarms and telemetry out to every applicable export
// target.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/smart-guard/pulseone-core/internal/config"
	"github.com/smart-guard/pulseone-core/internal/repository"
	"github.com/smart-guard/pulseone-core/pkg/log"
	"github.com/smart-guard/pulseone-core/pkg/runtimeEnv"
)

// version, commit and date are set via -ldflags at build time; the
// defaults below are what a `go build` with no ldflags produces.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("pulseone-collector %s (%s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := runtimeEnv.LoadEnv(".env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("collector: loading .env: %v", err)
	}

	config.Init(flagConfigFile)
	if config.Keys.Interactive {
		flagInteractive = true
	}
	if config.Keys.LogLevel != "" {
		log.SetLogLevel(config.Keys.LogLevel)
	}
	for component, level := range config.Keys.LogLevels {
		log.SetComponentLevel(component, level)
	}

	if flagMigrateDB {
		repository.MigrateDB(config.Keys.DBDriver, config.Keys.DB)
		os.Exit(0)
	}

	repository.Connect(config.Keys.DBDriver, config.Keys.DB)

	if config.Keys.User != "" || config.Keys.Group != "" {
		if err := runtimeEnv.DropPrivileges(config.Keys.User, config.Keys.Group); err != nil {
			log.Fatalf("collector: dropping privileges: %v", err)
		}
	}

	app, err := buildApp()
	if err != nil {
		log.Fatalf("collector: boot sequence failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if anyTestMode() {
		if runTestModes(ctx, app) {
			os.Exit(0)
		}
	}

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(25)
	}

	if flagInteractive {
		runInteractive(ctx, app)
		return
	}

	sigs := runtimeEnv.NotifyShutdown()
	go func() {
		<-sigs
		runtimeEnv.SystemdNotify(false, "shutting down")
		cancel()
	}()

	runtimeEnv.SystemdNotify(true, "running")
	if err := app.Run(ctx); err != nil {
		log.Fatalf("collector: %v", err)
	}
	log.Print("collector: graceful shutdown complete")
}
