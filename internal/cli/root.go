// Package cli implements the rowmeta command line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rowmeta/rowmeta/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rowmeta",
		Short: "Rewrite SELECT statements to expose per-row identity and revision columns",
		Long: "rowmeta rewrites PostgreSQL SELECT statements so every result row carries\n" +
			"a synthetic identity column and a monotonic revision column, and provisions\n" +
			"the schema objects (columns, sequence, triggers) that back them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: rowmeta.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("database-dsn", "", "PostgreSQL DSN for schema provisioning")
	rootCmd.PersistentFlags().String("identity-column", "", "Identity meta-column name")
	rootCmd.PersistentFlags().String("revision-column", "", "Revision meta-column name")
	rootCmd.PersistentFlags().String("default-schema", "", "Schema for unqualified table names")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRewriteCmd())
	rootCmd.AddCommand(newProvisionCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig resolves configuration for a command: .env file, config file,
// environment variables, then the command's explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

// newLogger builds the process logger from the configured level and installs
// it as the slog default. Config warnings are logged once here.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}
	return logger
}

// sqlFromArgsOrStdin returns the SQL text from the positional argument, or
// from a stdin pipe when no argument is given.
func sqlFromArgsOrStdin(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("provide SQL as an argument or on stdin")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
