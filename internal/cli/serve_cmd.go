package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowmeta/rowmeta/internal/api"
	"github.com/rowmeta/rowmeta/internal/config"
	"github.com/rowmeta/rowmeta/internal/db"
	"github.com/rowmeta/rowmeta/internal/provision"
	"github.com/rowmeta/rowmeta/internal/rewrite"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rewrite HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().String("listen-addr", "", "Listen address (default :8080)")
	return cmd
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	rewriterDeps := rewrite.Deps{Names: cfg.Names(), Logger: logger}
	handlerDeps := api.HandlerDeps{Logger: logger}

	if cfg.DatabaseDSN != "" {
		pool, err := db.OpenPostgres(cfg.DatabaseDSN, cfg.DBMaxOpenConns)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer func() { _ = pool.Close() }()

		prov := provision.New(provision.Deps{DB: pool, Names: cfg.Names(), Logger: logger})
		rewriterDeps.Provisioner = prov
		handlerDeps.Provisioner = prov
	}

	handlerDeps.Rewriter = rewrite.NewRewriter(rewriterDeps)
	handler := api.NewHandler(handlerDeps)

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSOrigins(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("rewrite API listening",
		"addr", cfg.ListenAddr,
		"provisioning", cfg.DatabaseDSN != "",
		"identity_column", cfg.IdentityColumn,
		"revision_column", cfg.RevisionColumn)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
