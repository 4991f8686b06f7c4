package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/service-gateway/config"
	"github.com/angeloszaimis/service-gateway/internal/auth"
	"github.com/angeloszaimis/service-gateway/internal/httpserver"
	"github.com/angeloszaimis/service-gateway/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "gateway",
		Short:        "API gateway with per-service circuit breakers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(&configFile), newTokenCmd(&configFile))
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func newTokenCmd(configFile *string) *cobra.Command {
	var userID, email string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}

			authenticator, err := newAuthenticator(cfg)
			if err != nil {
				return err
			}

			token, err := authenticator.Issue(userID, email)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "dev-user", "user id carried by the token")
	cmd.Flags().StringVar(&email, "email", "", "email carried by the token")

	return cmd
}

func runServe(parent context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		return err
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw, err := setupGateway(cfg, log)
	if err != nil {
		log.Error("Failed to set up gateway", slog.Any("err", err))
		return err
	}

	srv, err := httpserver.New(cfg.Server.Address, gw.Handler(), httpserver.Timeouts{
		Read:  config.Duration(cfg.Server.ReadTimeout),
		Write: config.Duration(cfg.Server.WriteTimeout),
		Idle:  config.Duration(cfg.Server.IdleTimeout),
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return err
	}

	gw.Start(ctx)
	defer gw.Wait()

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.String("base_path", cfg.Server.BasePath))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return nil
	case err := <-srvErrCh:
		cancel()
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
		}
		return err
	}
}

func newAuthenticator(cfg *config.Config) (*auth.JWT, error) {
	return auth.NewJWT(auth.Options{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		CookieName: cfg.Auth.CookieName,
		TTL:        config.Duration(cfg.Auth.TokenTTL),
	})
}
