// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	flagHelp, flagVersion, flagDaemon, flagInteractive bool
	flagTestAlarm, flagTestMulti, flagTestBatch        bool
	flagTestConnection, flagTestAll, flagCleanup       bool
	flagMigrateDB                                      bool
	flagConfigFile                                     string
)

func cliInit() {
	flag.BoolVar(&flagHelp, "help", false, "Show usage and exit")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the collector's `config.json`")
	flag.BoolVar(&flagDaemon, "daemon", true, "Run the long-lived collector daemon (default)")
	flag.BoolVar(&flagInteractive, "interactive", false, "Run the interactive console instead of the daemon loop")
	flag.BoolVar(&flagTestAlarm, "test-alarm", false, "Push one synthetic alarm through the export pipeline and exit")
	flag.BoolVar(&flagTestMulti, "test-multi", false, "Push several synthetic alarms across targets and exit")
	flag.BoolVar(&flagTestBatch, "test-batch", false, "Push a synthetic value batch through the export pipeline and exit")
	flag.BoolVar(&flagTestConnection, "test-connection", false, "Test connectivity of every enabled export target and exit")
	flag.BoolVar(&flagTestAll, "test-all", false, "Run every test mode in sequence and exit")
	flag.BoolVar(&flagCleanup, "cleanup", false, "Release cached handler connections (idle HTTP/S3/MQTT clients) and exit")
	flag.BoolVar(&flagMigrateDB, "migrate-db", false, "Apply pending schema migrations and exit")
	flag.Parse()

	if flagHelp {
		fmt.Fprintln(os.Stderr, "pulseone-collector: industrial data collection and export daemon")
		flag.PrintDefaults()
		os.Exit(0)
	}
}

// anyTestMode reports whether a one-shot test/maintenance flag was given,
// in which case the daemon loop and interactive console are skipped.
func anyTestMode() bool {
	return flagTestAlarm || flagTestMulti || flagTestBatch || flagTestConnection || flagTestAll || flagCleanup
}
