package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/api"
	"github.com/solatis/streamrouter/internal/core/auth"
	"github.com/solatis/streamrouter/internal/core/config"
	"github.com/solatis/streamrouter/internal/core/server"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/sources"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC router API",
	Long: `Start the gRPC router API. Routes are loaded from the database and the
routes file; SIGHUP reloads them without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Bool("insecure", false, "serve without API key authentication")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cfg := a.cfg
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	insecure, _ := cmd.Flags().GetBool("insecure")

	database, queries, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	var authenticator *auth.Authenticator
	if !insecure {
		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set SR_HMAC_SECRET or pass --insecure)")
		}
		authenticator = auth.NewAuthenticator(secrets, queries, a.logger)
	}

	reg := router.NewRegistry(a.logger)
	sinks, err := sources.OpenSinks(cfg.Sinks, reg, a.logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	r := router.New(router.Config{MaxWorkers: cfg.Router.MaxWorkers}, a.logger)
	if err := a.loadRoutes(r, reg, database, queries); err != nil {
		return err
	}

	service, err := api.NewRouterService(r, cfg.Server, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.watchConfig()

	a.logger.WithField("version", Version).Info("starting streamrouter")
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(context.Background())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := a.loadRoutes(r, reg, database, queries); err != nil {
					a.logger.WithError(err).Error("route reload failed, keeping current routes")
				}
				continue
			}
			a.logger.Info("shutting down gracefully")
			return grpcServer.Shutdown(context.Background())
		}
	}
}
