package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowmeta/rowmeta/internal/db"
	"github.com/rowmeta/rowmeta/internal/provision"
)

func newProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision [sql]",
		Short: "Ensure schema objects for every table a statement references",
		Long: "Parse a statement and ensure the identity and revision columns, the shared\n" +
			"revision sequence, the stamp function and the per-table triggers exist for\n" +
			"every base table it references. SQL is read from the argument or from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == "" {
				return fmt.Errorf("provision requires a database DSN (set ROWMETA_DATABASE_DSN or --database-dsn)")
			}
			sqlText, err := sqlFromArgsOrStdin(args)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)

			pool, err := db.OpenPostgres(cfg.DatabaseDSN, cfg.DBMaxOpenConns)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer func() { _ = pool.Close() }()

			prov := provision.New(provision.Deps{DB: pool, Names: cfg.Names(), Logger: logger})
			result, err := prov.EnsureForSQL(cmd.Context(), sqlText)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, result)
		},
	}
	return cmd
}
