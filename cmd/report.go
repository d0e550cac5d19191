package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/real-estate-etl/pscprobe/internal/metrics"
	"github.com/real-estate-etl/pscprobe/internal/models"
	"github.com/real-estate-etl/pscprobe/internal/reporter"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a single log entry",
	Long: `Write one log entry to the configured sink, falling back to stderr when
the sink is not configured or cannot be reached. A sink failure does not
change the exit code, so pipeline scripts can call this unconditionally.`,
	Example: `  pscprobe report --level SUCCESS --message "Daily load finished"
  pscprobe report --level ERROR --message "Load failed" --detail error_message="timeout after 300s"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		levelFlag, _ := cmd.Flags().GetString("level")
		message, _ := cmd.Flags().GetString("message")
		detailFlags, _ := cmd.Flags().GetStringArray("detail")

		level, err := models.ParseLevel(levelFlag)
		if err != nil {
			return err
		}
		if strings.TrimSpace(message) == "" {
			return models.ErrEmptyMessage
		}
		details, err := parseDetails(detailFlags)
		if err != nil {
			return err
		}

		m := metrics.New()
		rep := reporter.New(cfg,
			reporter.WithFallback(cmd.ErrOrStderr()),
			reporter.WithLogger(logger),
			reporter.WithMetrics(m),
			reporter.WithRunID(runID))
		rep.Report(cmd.Context(), level, message, details)

		pushMetrics(cmd.Context(), m)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("level", "", "entry level, e.g. SUCCESS, ERROR, CRITICAL (required)")
	reportCmd.Flags().String("message", "", "entry message (required)")
	reportCmd.Flags().StringArray("detail", nil, "detail as key=value; repeatable")
	_ = reportCmd.MarkFlagRequired("level")
	_ = reportCmd.MarkFlagRequired("message")
}

// parseDetails turns key=value pairs into Details. The value may contain '='.
func parseDetails(pairs []string) (models.Details, error) {
	details := models.Details{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid detail %q: expected key=value", pair)
		}
		details[key] = value
	}
	return details, nil
}
