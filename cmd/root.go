package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/logging"
	"github.com/real-estate-etl/pscprobe/pkg/output"
)

const version = "0.1.0"

// errProbeFailed is returned when the probe ends in any outcome but success.
// The outcome itself has already been reported, so it is not printed again.
var errProbeFailed = errors.New("probe failed")

var (
	cfgFile string
	envFile string
	cfg     *config.Config
	logger  *logging.Logger
	runID   string
)

var rootCmd = &cobra.Command{
	Use:   "pscprobe",
	Short: "Database connectivity probe with sink logging",
	Long: `pscprobe verifies that the pipeline database is reachable (over Private
Service Connect in production) and records the result as a log entry in
that same database. When the database cannot take the entry, the entry is
written to stderr instead.

Running pscprobe without a subcommand runs the probe.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	RunE:              runProbe,
}

// Execute runs the command tree and prints any error except a failed probe,
// whose outcome has already been reported.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errProbeFailed) {
		output.Error(rootCmd.ErrOrStderr(), "%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pscprobe.yaml or /etc/pscprobe/pscprobe.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load; missing file is ignored")
	rootCmd.PersistentFlags().String("log-level", "", "diagnostic log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "diagnostic log format: json, text")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile, envFile)
	if err != nil {
		return err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = logging.New(cmd.OutOrStdout(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate run id: %w", err)
	}
	runID = id.String()
	cmd.SetContext(logging.ContextWithRunID(cmd.Context(), runID))

	return nil
}
