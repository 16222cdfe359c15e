package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jobflow/jobflow/pkg/logging"
)

var (
	cfgFile  string
	logLevel string
	devMode  bool

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jobflow",
	Short: "Supervisor for long-running external computational jobs",
	Long: `jobflow submits external computational jobs through a queue backend or
directly as subprocesses, triangulates their status from exit codes and
on-disk artifacts, and adaptively retunes their parallel configuration
from a cheap probe run before the real submission.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logLevel, devMode)
		if err != nil {
			return err
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobflow/config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "human-readable console logging")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".jobflow"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("JOBFLOW")
	viper.AutomaticEnv()

	// Missing config file is fine; flags and env carry the defaults.
	_ = viper.ReadInConfig()

	if v := viper.GetString("log_level"); v != "" {
		logLevel = v
	}
	if v := viper.GetDuration("poll_interval"); v > 0 {
		runPollInterval = v
	}
	if v := viper.GetString("serve"); v != "" {
		runServeAddr = v
	}
	if v := viper.GetString("results"); v != "" {
		runResultsOut = v
	}
}
