// Package cmd implements the report-enricher command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openctemio/report-enricher/internal/app/enrich"
	"github.com/openctemio/report-enricher/internal/config"
	"github.com/openctemio/report-enricher/internal/infra/sysdig"
	"github.com/openctemio/report-enricher/pkg/logger"
)

var (
	version string

	// Global flags
	flagTenant    string
	flagAPIToken  string
	flagContext   string
	flagLogLevel  string
	flagLogFormat string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "report-enricher",
	Short: "Enrich Sysdig vulnerability reports with image label attributes",
	Long: `report-enricher drives the Sysdig Secure reporting API and enriches the
resulting vulnerability report CSVs.

The pipeline has three stages:

  fetch    generate (or pull) a report and decompress it locally
  extract  reduce the report to an Image ID -> attribute lookup table
  merge    join the lookup table back onto the report as a new column

extract and merge communicate only through the lookup file, so each stage
can be re-run independently. "run" chains the stages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return cfg.Validate()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "Override Sysdig tenant host (env: SYSDIG_TENANT)")
	rootCmd.PersistentFlags().StringVar(&flagAPIToken, "api-token", "", "Override Sysdig API token (env: SYSDIG_API_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context from the config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text, json (env: LOG_FORMAT)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	cfg = config.Load()

	if flagTenant != "" {
		cfg.Sysdig.Tenant = flagTenant
	}
	if flagAPIToken != "" {
		cfg.Sysdig.APIToken = flagAPIToken
	}
	if cfg.Sysdig.Tenant == "" || cfg.Sysdig.APIToken == "" {
		tenant, token := resolveFromConfigFile(flagContext)
		if cfg.Sysdig.Tenant == "" {
			cfg.Sysdig.Tenant = tenant
		}
		if cfg.Sysdig.APIToken == "" {
			cfg.Sysdig.APIToken = token
		}
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}

	log = logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func newEnrichService() *enrich.Service {
	return enrich.NewService(log,
		enrich.WithProgressInterval(cfg.Report.ProgressInterval),
	)
}

func newSysdigClient() (*sysdig.Client, error) {
	if err := cfg.ValidateSysdig(); err != nil {
		return nil, err
	}
	return sysdig.NewClient(sysdig.Config{
		Tenant:       cfg.Sysdig.Tenant,
		APIToken:     cfg.Sysdig.APIToken,
		PollInterval: cfg.Sysdig.PollInterval,
		PollTimeout:  cfg.Sysdig.PollTimeout,
		Window:       cfg.Sysdig.Window,
		Timezone:     cfg.Sysdig.Timezone,
		HTTPTimeout:  cfg.Sysdig.HTTPTimeout,
	}, log), nil
}
