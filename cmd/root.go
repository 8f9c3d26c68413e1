package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"retflow/internal/observability"
	"retflow/internal/ui"
	"retflow/pkg/errors"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "retflow",
		Short: "Run the daily retention pipeline",
		Long: "RetFlow - A CLI tool for computing cohort retention from warehouse session data\n" +
			"and publishing the result to a dashboard server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				observability.Default().SetLevel(observability.DebugLevel)
			}
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errors.GetGlobalErrorHandler().Log(err)
		ui.ShowError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(fmt.Sprintf("%s/.retflow", home))
	}

	// Config file not found is fine; setup creates it.
	_ = viper.ReadInConfig()
}
