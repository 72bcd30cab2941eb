package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/appid"
	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appid.BinaryName,
	Short: appid.Description,
	Long: fmt.Sprintf(`%s - %s

Every provider call made by any subcommand passes through one process-wide
sliding-window rate limiter (rate_limit.max_requests per rate_limit.window).`,
		appid.BinaryName, appid.Description),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appid.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace provider requests/responses to NDJSON file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	observability.InitCLILogger(appid.BinaryName, verbose)

	v := viper.GetViper()
	config.SetDefaults(v)
	config.ConfigureSources(v, cfgFile)

	found, err := config.ReadFile(v)
	switch {
	case err != nil:
		observability.CLILogger.Warn("Error reading config file, using defaults and environment variables",
			zap.Error(err))
	case found:
		observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	default:
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}
}
