package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/bundle"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/config"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/export"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/pullsync"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/upload"
)

// rootOptions carries the resolved configuration into subcommands.
type rootOptions struct {
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: config.Default()}
	overrides := config.Default()

	cmd := &cobra.Command{
		Use:           "flowagent",
		Short:         "Offline-first field data-collection agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			cfg.ApplyFlags(cmd.Flags(), overrides)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Init(os.Stderr, cfg.Debug)
			if _, err := config.EnsureDeviceID(&cfg); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	overrides.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newInstallBundlesCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}

// openStore opens the database, applies pending migrations, and
// returns the store. The caller owns the returned handle.
func openStore(cfg config.Config) (*db.DB, *db.Store, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(database.DB); err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, db.NewStore(database.DB), nil
}

// services wires the engine components around one store.
type services struct {
	exporter  *export.Service
	transport *upload.Transport
	installer *bundle.Installer
	puller    *pullsync.Synchronizer
}

func buildServices(cfg config.Config, store *db.Store) *services {
	return &services{
		exporter: export.NewService(store, export.Config{
			ExportDir:      filepath.Join(cfg.DataDir, "exports"),
			DeviceID:       cfg.DeviceID,
			SubmitterEmail: cfg.SubmitterEmail,
			SigningKey:     cfg.SigningKey,
		}),
		transport: upload.NewTransport(store, upload.Config{
			UploadURL: cfg.UploadURL,
			NotifyURL: cfg.ServerBaseURL + "/processingnotification",
			DeviceID:  cfg.DeviceID,
		}),
		installer: bundle.NewInstaller(store, bundle.Config{
			InboxDir:    cfg.BundleDir,
			ResourceDir: filepath.Join(cfg.DataDir, "res"),
			FormsDir:    filepath.Join(cfg.DataDir, "forms"),
			TenantID:    cfg.TenantID,
		}),
		puller: pullsync.NewSynchronizer(store, pullsync.Config{
			BaseURL:  cfg.ServerBaseURL,
			DeviceID: cfg.DeviceID,
		}),
	}
}
