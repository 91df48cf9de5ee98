package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/broadinstitute/nightcafe/internal/config"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the analysis whenever the input table or config changes",
		Long: `watch runs the analysis once, then again each time the local input file
is written (debounced by watch.debounce), the config file changes, or the
cron expression in watch.schedule fires. A schedule makes remote inputs
watchable. Runs never overlap. Gate failures are logged and do not stop
watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context(), cmd)
		},
	}
}

func (a *app) watch(ctx context.Context, cmd *cobra.Command) error {
	input := a.cfg.Input.Path
	if input != "" {
		if _, err := os.Stat(input); err != nil {
			if a.cfg.Watch.Schedule == "" || a.cfg.Input.URL == "" {
				return fmt.Errorf("watch: %w", err)
			}
			input = ""
		}
	}
	if input == "" && a.cfg.Watch.Schedule == "" {
		return errors.New("watch: a local input path is required unless watch.schedule is set")
	}
	var sched cron.Schedule
	if spec := a.cfg.Watch.Schedule; spec != "" {
		var err error
		if sched, err = config.ParseSchedule(spec); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
	}

	triggers := make(chan string, 1)
	reloads := make(chan *config.Config, 1)
	trigger := func(name string) {
		select {
		case triggers <- name:
		default: // a run is already queued
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if input != "" {
		g.Go(func() error {
			return config.WatchFiles(gctx, []string{input}, a.cfg.Watch.Debounce, func(path string) {
				trigger("input:" + path)
			})
		})
	}

	if sched != nil {
		c := cron.New()
		c.Schedule(sched, cron.FuncJob(func() { trigger("schedule") }))
		c.Start()
		slog.Info("watch: schedule active", "schedule", a.cfg.Watch.Schedule, "next", sched.Next(time.Now()))
		g.Go(func() error {
			<-gctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	if _, err := os.Stat(a.configPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, a.configPath, func(cfg *config.Config) {
				if err := a.override(cmd, cfg); err != nil {
					slog.Error("watch: reloaded config rejected", "err", err)
					return
				}
				select {
				case <-reloads:
				default:
				}
				reloads <- cfg
			})
		})
	}

	// Single runner: runs are serialized and a.cfg is only touched here.
	g.Go(func() error {
		a.runLogged(gctx, "startup")
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-reloads:
				if input != "" && cfg.Input.Path != input {
					slog.Warn("watch: input path changed, restart to watch the new file",
						"watching", input, "configured", cfg.Input.Path)
				}
				a.cfg = cfg
				a.runLogged(gctx, "config")
			case name := <-triggers:
				a.runLogged(gctx, name)
			}
		}
	})

	err := g.Wait()
	slog.Info("watch: stopped")
	return err
}

// runLogged performs one run; failures are logged so watching continues.
func (a *app) runLogged(ctx context.Context, trigger string) {
	slog.Info("watch: run triggered", "trigger", trigger)
	vs, err := analyze(ctx, a.cfg, a.stdout)
	if err != nil {
		slog.Error("watch: run failed", "trigger", trigger, "err", err)
		return
	}
	if len(vs) > 0 {
		slog.Warn("watch: gates failed", "violations", len(vs))
	}
}
