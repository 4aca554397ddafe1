// Command fdphost is the example simulation host (spec §6): `fdphost
// <instanceId:int> <mode:{live,replay}> [recordingPath]`. Exit codes: 0
// normal, 1 build/config failure, 2 runtime exception, 130 interrupted.
//
// Arguments are parsed positionally from os.Args (no flag package, no
// cobra/urfave), a style grounded on cmd/neo-snapshot/main.go, as is the Config-struct-plus-manifest
// shape; the periodic background maintenance loop is grounded on the
// teacher's robfig/cron usage in services/automation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fdpkit/fdp/internal/obs/config"
	"github.com/fdpkit/fdp/internal/obs/logging"
	"github.com/fdpkit/fdp/internal/obs/metrics"
	"github.com/fdpkit/fdp/system/eventbus"
	"github.com/fdpkit/fdp/system/recorder"
	"github.com/fdpkit/fdp/system/scheduler"
	"github.com/fdpkit/fdp/system/store"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitRuntime     = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: fdphost <instanceId:int> <mode:{live,replay}> [recordingPath]")
		return exitConfigError
	}
	instanceID, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fdphost: invalid instanceId %q: %v\n", args[0], err)
		return exitConfigError
	}
	mode := config.RecordingMode(args[1])
	if mode != config.Live && mode != config.Replay {
		fmt.Fprintf(os.Stderr, "fdphost: invalid mode %q, want live|replay\n", args[1])
		return exitConfigError
	}
	recordingPath := ""
	if len(args) > 2 {
		recordingPath = args[2]
	}
	if mode == config.Replay && recordingPath == "" {
		fmt.Fprintln(os.Stderr, "fdphost: replay mode requires a recordingPath")
		return exitConfigError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fdphost: config error: %v\n", err)
		return exitConfigError
	}

	log := logging.New(fmt.Sprintf("fdp-host-%d", instanceID), cfg.LogLevel, cfg.LogFormat)

	repo := store.New()
	bus := eventbus.New()
	host := scheduler.New(repo, bus, log, cfg.FixedDeltaSeconds)
	host.SetObserver(metrics.New())

	var rec *recorder.Writer
	var recFile *os.File
	if mode == config.Live {
		recFile, err = os.Create(recordingPath)
		if err != nil && recordingPath != "" {
			fmt.Fprintf(os.Stderr, "fdphost: cannot open recording path: %v\n", err)
			return exitConfigError
		}
		if recFile != nil {
			rec = recorder.NewWriter(recFile)
			defer func() {
				rec.Close()
				recFile.Close()
			}()

			manifest := recorder.Manifest{
				SessionID: recorder.NewSessionID(),
				Instance:  instanceID,
				CreatedAt: time.Now(),
				BodyPath:  recordingPath,
			}
			if err := recorder.WriteManifest(recordingPath+".manifest.json", manifest); err != nil {
				fmt.Fprintf(os.Stderr, "fdphost: cannot write session manifest: %v\n", err)
				return exitConfigError
			}
			log.Infof("recording session=%s body=%s", manifest.SessionID, manifest.BodyPath)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	maintenance := cron.New()
	maintenanceID, cerr := maintenance.AddFunc("@every 1m", func() {
		tick, timeS := host.Now()
		log.WithTick(tick).Infof("maintenance sweep: world time=%.2fs entities=%d", timeS, repo.EntityCount())
	})
	if cerr != nil {
		fmt.Fprintf(os.Stderr, "fdphost: failed to schedule maintenance: %v\n", cerr)
		return exitConfigError
	}
	_ = maintenanceID
	maintenance.Start()
	defer maintenance.Stop()

	log.Infof("fdphost instance=%d mode=%s starting", instanceID, mode)

	for {
		select {
		case <-ctx.Done():
			log.Infof("fdphost interrupted")
			return exitInterrupted
		default:
		}

		if err := host.Tick(); err != nil {
			log.DiagnosticErr(0, "host", err)
			return exitRuntime
		}
		if host.Poisoned() != nil {
			log.Errorf("world poisoned: %v", host.Poisoned())
			return exitRuntime
		}

		if rec != nil {
			tick, timeS := host.Now()
			if err := rec.WriteTick(recorder.TickRecord{Tick: tick, TimeS: timeS, Delta: float32(cfg.FixedDeltaSeconds)}, nil); err != nil {
				log.DiagnosticErr(tick, "recorder", err)
				return exitRuntime
			}
		}
	}
}

