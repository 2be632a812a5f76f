package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/echotools/phonebook/internal/config"
	"github.com/echotools/phonebook/internal/store"
)

var (
	version    = "dev"
	cfg        *config.Config
	logger     *zap.Logger
	configFile string
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "phonebook",
		Short:   "Phonebook - GraphQL API over persons and users",
		Version: version,
		Long: `Phonebook serves a GraphQL API for looking up and editing persons
and their phone numbers, backed by MongoDB. The same binary can run
queries directly against the store and manage user accounts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Override config with global flags
			flags := cmd.Flags()
			if flags.Changed("debug") {
				cfg.Debug, _ = flags.GetBool("debug")
			}
			if flags.Changed("log-level") {
				cfg.LogLevel, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-file") {
				cfg.LogFile, _ = flags.GetString("log-file")
			}
			if flags.Changed("store") {
				cfg.Store.Driver, _ = flags.GetString("store")
			}
			if flags.Changed("mongo-uri") {
				cfg.Store.MongoURI, _ = flags.GetString("mongo-uri")
			}
			if flags.Changed("database") {
				cfg.Store.Database, _ = flags.GetString("database")
			}

			logger, err = cfg.NewLogger()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path")
	rootCmd.PersistentFlags().String("store", store.DriverMongo, "store driver (mongo, memory)")
	rootCmd.PersistentFlags().String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	rootCmd.PersistentFlags().String("database", "phonebook", "MongoDB database name")

	// Add subcommands
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newUserCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// cliLogger keeps informational store logs out of command output unless
// debugging.
func cliLogger() *zap.Logger {
	if cfg.Debug {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
}

// openStore connects to the configured store and ensures its schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.StoreConfig(), cliLogger())
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return st, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
