// Upstream is a demo service for exercising the gateway locally. It keeps an
// in-memory collection named after the service, answers /health, and can be
// told to fail so the circuit breaker has something to trip on.
//
// Usage:
//
//	go run ./cmd/upstream --name users --port 8001
//	curl -X POST localhost:8001/admin/fail -d '{"failing":true}'
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/angeloszaimis/service-gateway/pkg/logger"
)

func main() {
	var (
		name  string
		port  int
		level string
	)

	cmd := &cobra.Command{
		Use:          "upstream",
		Short:        "Run a demo upstream service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			gin.SetMode(gin.ReleaseMode)
			log := logger.New(level, false, "dev").With(slog.String("service", name))

			addr := fmt.Sprintf(":%d", port)
			log.Info("Upstream listening", slog.String("address", addr))
			return newUpstream(name, log).Run(addr)
		},
	}
	cmd.Flags().StringVar(&name, "name", "users", "service name; also the collection path")
	cmd.Flags().IntVar(&port, "port", 8001, "port to listen on")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
