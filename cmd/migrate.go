package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/logging"
	"github.com/real-estate-etl/pscprobe/internal/sink"
	"github.com/real-estate-etl/pscprobe/migrations"
	"github.com/real-estate-etl/pscprobe/pkg/output"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostgreSQL sink table",
	Long: `Apply the embedded migrations that create etl_monitoring.pipeline_logs on a
PostgreSQL sink. MongoDB sinks need no provisioning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.HasSinkURI() {
			return fmt.Errorf("%s is not set", config.EnvSinkURI)
		}

		backend, err := sink.BackendFor(cfg.Sink.URI)
		if err != nil {
			return err
		}
		if backend != sink.BackendPostgres {
			return fmt.Errorf("migrations apply to PostgreSQL sinks only, got %s", backend.DisplayName())
		}
		if cfg.Sink.Database != config.DefaultDatabase || cfg.Sink.Collection != config.DefaultCollection {
			output.Warn(cmd.OutOrStdout(), "migrations create %s.%s only; %s.%s must be created by hand",
				config.DefaultDatabase, config.DefaultCollection, cfg.Sink.Database, cfg.Sink.Collection)
		}

		logger.InfoContext(cmd.Context(), "running database migrations", logging.Target(cfg.RedactedURI()))
		version, err := migrations.Up(cfg.Sink.URI)
		if err != nil {
			return err
		}

		output.Success(cmd.OutOrStdout(), "Database migrations completed (version %d)", version)
		return nil
	},
}
