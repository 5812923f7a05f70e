package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"helmsman/internal/logging"
)

var (
	cfgFile string
	debug   bool
	rootCmd = &cobra.Command{
		Use:   "helmsman",
		Short: "helmsman is a decision and learning engine for automated coding sessions",
	}
)

// Execute runs the root command.
func Execute() error {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(defaultDataDir(), "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		cfg, err := loadConfig()
		logFile := ""
		if err == nil {
			logFile = cfg.LogFile
		}
		logging.Init(debug, logFile)
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(pruneCmd())
	return rootCmd.Execute()
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = filepath.Join(defaultDataDir(), "config.json")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".helmsman"
	}
	return filepath.Join(home, ".helmsman")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
