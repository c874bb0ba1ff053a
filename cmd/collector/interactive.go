// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/smart-guard/pulseone-core/internal/worker"
	"github.com/smart-guard/pulseone-core/pkg/log"
)

// runInteractive starts every background component (same as the daemon
// path) and then reads operator commands from stdin instead of just
// blocking on a signal, per config.json's "interactive" option: "Run the
// interactive console instead of the daemon loop."
func runInteractive(ctx context.Context, a *app) {
	if err := a.scheduler.StartAllActiveWorkers(ctx); err != nil {
		log.Errorf("collector: starting active workers: %v", err)
	}
	a.monitor.Start()
	go a.dispatcher.Run(ctx)

	fmt.Println("pulseone-collector interactive console. Type 'help' for commands, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if !handleConsoleLine(ctx, a, strings.TrimSpace(scanner.Text())) {
			break
		}
	}

	if err := a.Shutdown(); err != nil {
		log.Warnf("collector: shutdown: %v", err)
	}
}

// handleConsoleLine runs one console command; returns false when the
// console should exit.
func handleConsoleLine(ctx context.Context, a *app, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "quit", "exit":
		return false

	case "help":
		fmt.Println("commands: status, start <device-id>, stop <device-id>, restart <device-id>, quit")

	case "status":
		fmt.Printf("registered workers: %d\n", a.registry.Count())
		a.registry.ForEach(func(w *worker.Worker) {
			st := w.GetStatus()
			fmt.Printf("  device %-6d %-14s last error: %s\n", st.DeviceID, st.State, st.LastError)
		})

	case "start":
		withDeviceID(fields, func(id int64) {
			if err := a.scheduler.StartWorker(ctx, id); err != nil {
				fmt.Printf("start %d failed: %v\n", id, err)
			}
		})

	case "stop":
		withDeviceID(fields, func(id int64) {
			// Stop the Worker (bounded by Stop's own 5s wait), then drop
			// it from the registry so a later "start" builds a fresh one.
			if w, ok := a.registry.Get(id); ok {
				<-w.Stop()
			}
			a.registry.Unregister(id)
		})

	case "restart":
		withDeviceID(fields, func(id int64) {
			if err := a.scheduler.RestartWorker(ctx, id); err != nil {
				fmt.Printf("restart %d failed: %v\n", id, err)
			}
		})

	default:
		fmt.Printf("unrecognized command %q, type 'help'\n", fields[0])
	}
	return true
}

func withDeviceID(fields []string, fn func(id int64)) {
	if len(fields) < 2 {
		fmt.Println("usage: <command> <device-id>")
		return
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		fmt.Printf("invalid device id %q\n", fields[1])
		return
	}
	fn(id)
}
