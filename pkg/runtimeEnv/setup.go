// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeEnv holds process-level setup helpers shared by every
// cmd binary: .env loading, privilege dropping, and systemd readiness
// notification.
package runtimeEnv

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

// LoadEnv loads key=value pairs from file into the process environment.
// A missing file is returned as-is so callers can treat it as optional
// with os.IsNotExist.
func LoadEnv(file string) error {
	return godotenv.Load(file)
}

// DropPrivileges changes the process's user and group to those named,
// once a privileged port has already been bound. The go runtime applies
// the underlying syscall to every thread, not just the calling one.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up group")
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			log.Warn("runtimeEnv: error while setting gid")
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up user")
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			log.Warn("runtimeEnv: error while setting uid")
			return err
		}
	}

	return nil
}

// SystemdNotify informs systemd of readiness/status, a no-op unless the
// process was started under systemd (NOTIFY_SOCKET set).
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}

// NotifyShutdown returns a channel that fires once on SIGINT or SIGTERM,
// for the daemon's main select loop.
func NotifyShutdown() chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
