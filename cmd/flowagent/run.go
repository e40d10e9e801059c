package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/bundle"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/worker"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background workers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts)
		},
	}
}

func runAgent(opts *rootOptions) error {
	database, store, err := openStore(opts.cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := buildServices(opts.cfg, store)
	sched := worker.NewScheduler(store, svc.exporter, svc.transport, svc.installer, svc.puller, nil,
		worker.Config{
			ExportInterval: opts.cfg.ExportInterval(),
			BundleInterval: opts.cfg.BundleInterval(),
			SyncInterval:   opts.cfg.SyncInterval(),
			SweepInterval:  opts.cfg.SweepInterval(),
			StaleThreshold: opts.cfg.StaleThreshold(),
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(opts.cfg.BundleDir, 0o755); err != nil {
		return err
	}
	watcher, err := bundle.NewWatcher(opts.cfg.BundleDir, sched.BundleNudge())
	if err != nil {
		logging.Get().WithError(err).Warn("bundle inbox watch unavailable, relying on periodic scans")
	} else {
		go watcher.Run(ctx)
	}

	logging.WithFields(logging.Fields{
		"device": opts.cfg.DeviceID,
		"data":   opts.cfg.DataDir,
	}).Info("agent started")

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	return nil
}
