package cmd

import (
	"github.com/spf13/cobra"

	"github.com/javi11/pkgexpand/internal/config"
	"github.com/javi11/pkgexpand/internal/errors"
	"github.com/javi11/pkgexpand/internal/logging"
)

var (
	configFile string
	logLevel   string
	logFile    string

	// runtimeConfig is resolved once in PersistentPreRunE and read by
	// the subcommands.
	runtimeConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pkgexpand",
	Short: "Expand macOS installer packages",
	Long: `pkgexpand extracts macOS installer package containers: the outer
archive is written out entry by entry, and in full-expansion mode the
nested payload and script containers (including pbzx-framed payloads)
are recursively expanded in place.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return errors.NewUsageError(err.Error())
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFile != "" {
			cfg.LogFile = logFile
		}
		if err := cfg.Validate(); err != nil {
			return errors.NewUsageError(err.Error())
		}
		logging.Setup(cfg)
		runtimeConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "mirror logs into a rotating file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.NewUsageError(err.Error())
	})
}

// Execute runs the CLI and returns the command's error, if any.
func Execute() error {
	return rootCmd.Execute()
}
