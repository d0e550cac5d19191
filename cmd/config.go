package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/real-estate-etl/pscprobe/internal/config"
	"github.com/real-estate-etl/pscprobe/internal/sink"
	"github.com/real-estate-etl/pscprobe/pkg/output"
)

// configView is the printable form of config.Config: durations as strings
// and the connection string redacted.
type configView struct {
	Sink struct {
		URI        string `yaml:"uri" json:"uri"`
		Backend    string `yaml:"backend" json:"backend"`
		Database   string `yaml:"database" json:"database"`
		Collection string `yaml:"collection" json:"collection"`
		Timeout    string `yaml:"timeout" json:"timeout"`
	} `yaml:"sink" json:"sink"`
	Identity struct {
		Author   string `yaml:"author" json:"author"`
		Service  string `yaml:"service" json:"service"`
		ImageTag string `yaml:"image_tag" json:"image_tag"`
	} `yaml:"identity" json:"identity"`
	Logging struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"logging" json:"logging"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
		Job            string `yaml:"job" json:"job"`
	} `yaml:"metrics" json:"metrics"`
}

func newConfigView(c *config.Config) configView {
	var v configView
	v.Sink.URI = c.RedactedURI()
	if backend, err := sink.BackendFor(c.Sink.URI); err == nil {
		v.Sink.Backend = string(backend)
	}
	v.Sink.Database = c.Sink.Database
	v.Sink.Collection = c.Sink.Collection
	v.Sink.Timeout = c.Sink.Timeout.String()
	v.Identity.Author = c.Identity.Author
	v.Identity.Service = c.Identity.Service
	v.Identity.ImageTag = c.Identity.ImageTag
	v.Logging.Level = c.Logging.Level
	v.Logging.Format = c.Logging.Format
	v.Metrics.PushgatewayURL = config.RedactURI(c.Metrics.PushgatewayURL)
	v.Metrics.Job = c.Metrics.Job
	return v
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after defaults, config file, .env file and environment are applied. Credentials are redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		view := newConfigView(cfg)

		switch format {
		case "json":
			return output.JSON(cmd.OutOrStdout(), view)
		case "yaml":
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		default:
			return fmt.Errorf("unknown output format %q: use yaml or json", format)
		}
	},
}

func init() {
	configCmd.Flags().StringP("output", "o", "yaml", "output format: yaml, json")
}
