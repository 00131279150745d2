package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/replicateio/tbridge/internal/config"
	"github.com/replicateio/tbridge/internal/telemetry"
	"github.com/replicateio/tbridge/internal/throttle"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll loop as a daemon",
	Long: `Polls both sides on a period that doubles on every consecutive
failure and resets to its configured base the moment a poll succeeds.
Watches the config file and reloads non-connection settings (poll
period, feature flags) without restarting.`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := openDeployment(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Close()

		shutdown, err := telemetry.Init(rootCtx, d.cfg.RID)
		if err != nil {
			fatalf("telemetry init: %v", err)
		}
		defer func() { _ = shutdown(context.Background()) }()

		period := throttle.New(d.cfg.PollPeriodBase, d.cfg.PollPeriodMax)
		watchConfigFile(rootCtx, resolvedConfigPath(), d)

		for {
			select {
			case <-rootCtx.Done():
				return
			default:
			}

			telemetry.RecordPollPeriod(rootCtx, float64(period.Current().Milliseconds()))

			result, err := d.engine.PollDatabases(rootCtx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "poll failed: %v\n", err)
				telemetry.RecordRetry(rootCtx)
				wait := period.Failure()
				sleepOrDone(rootCtx, wait)
				continue
			}

			fmt.Printf("poll ok: %d issues, %d jobs, %d conflicts\n",
				result.IssuesChanged, result.JobsChanged, result.ConflictsFound)
			wait := period.Success()
			sleepOrDone(rootCtx, wait)
		}
	},
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(config.EnvVar)
}

// watchConfigFile reloads the poll period bounds and feature set from
// the config file on every write, without touching the already-dialed
// connections; a parse failure is logged and the previous settings
// stay in effect.
func watchConfigFile(ctx context.Context, path string, d *deployment) {
	if path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watch: %v\n", err)
		return
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		fmt.Fprintf(os.Stderr, "config watch: %v\n", err)
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(path) || !event.Has(fsnotify.Write) {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "config reload failed, keeping previous settings: %v\n", err)
					continue
				}
				d.cfg.PollPeriodBase = cfg.PollPeriodBase
				d.cfg.PollPeriodMax = cfg.PollPeriodMax
				d.cfg.Features = cfg.Features
				d.engine.Cfg.FixesEnabled = cfg.Features.Fixes
				d.engine.Cfg.UsePerforceJobnames = cfg.Features.UsePerforceJobnames
				fmt.Println("config reloaded")
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "config watch error: %v\n", watchErr)
			}
		}
	}()
}

func init() {
	rootCmd.AddCommand(runCmd)
}
