package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowmeta/rowmeta/internal/db"
	"github.com/rowmeta/rowmeta/internal/provision"
	"github.com/rowmeta/rowmeta/internal/rewrite"
)

func newRewriteCmd() *cobra.Command {
	var (
		offline bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite [sql]",
		Short: "Rewrite a SELECT statement and print the result",
		Long: "Rewrite a SELECT statement so every result row carries the identity and\n" +
			"revision meta-columns. SQL is read from the argument or from stdin. When a\n" +
			"database DSN is configured, backing schema objects are provisioned first;\n" +
			"--offline skips that step.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sqlText, err := sqlFromArgsOrStdin(args)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)

			deps := rewrite.Deps{Names: cfg.Names(), Logger: logger}
			if cfg.DatabaseDSN != "" && !offline {
				pool, err := db.OpenPostgres(cfg.DatabaseDSN, cfg.DBMaxOpenConns)
				if err != nil {
					return fmt.Errorf("database: %w", err)
				}
				defer func() { _ = pool.Close() }()
				deps.Provisioner = provision.New(provision.Deps{DB: pool, Names: cfg.Names(), Logger: logger})
			}

			result, err := rewrite.NewRewriter(deps).Rewrite(cmd.Context(), sqlText)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(os.Stdout, result)
			}
			fmt.Fprintln(os.Stdout, result.SQL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip schema provisioning even when a database is configured")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result (SQL and resolved tables) as JSON")
	return cmd
}
