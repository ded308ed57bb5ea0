package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-recur/internal/cli"
	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/config"
)

var (
	cfgFile string
	version = "dev"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recur",
		Short: "📅 Recurring transaction series",
		Long: `recur: create, preview, edit and delete recurring transaction series.

A series is one parent template plus a child record for every generated date.
Month-based schedules anchored on the 29th-31st land on the last day of
shorter months and return to the anchor day when it exists again.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/recur/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "database path (default: $HOME/.local/share/recur/recur.db)")

	// Bind flags to viper
	_ = viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag(config.KeyDatabasePath, rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx, cancel := context.WithCancel(context.Background())
	ctx = handler.HandleInterrupts(ctx, "recur")

	err := newRootCmd().ExecuteContext(ctx)
	cancel() // Always cleanup

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
	if handler.WasInterrupted() {
		os.Exit(130)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	config.SetDefaults(viper.GetViper())

	// Set up config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(fmt.Sprintf("%s/.config/recur", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables, e.g. RECUR_DATABASE_PATH
	viper.SetEnvPrefix("RECUR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Set up logging
	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func setupLogging() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := common.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	return common.SetupLogger(level, cfg.LogFormat)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recur %s\n", version)
		},
	}
}
