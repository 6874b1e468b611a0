package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaygate/transport/internal/logging"
	"github.com/relaygate/transport/internal/server"
	"github.com/relaygate/transport/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve <service-name>",
	Short: "Run an echoing Server Transport loop for a service",
	Long: `serve runs a Server Transport worker loop against the configured
backend: it receives requests from the named service's inbound queue and
echoes the request body back as the response, exercising the full
receive/reassemble/deserialize and serialize/chunk/send round trip.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceName, err := requireServiceName(args)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		b, err := buildBackend(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build backend: %w", err)
		}
		defer b.Close()

		core, err := buildCore(transport.RoleServer, b, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build server core: %w", err)
		}

		srv, err := server.New(server.Config{ServiceName: serviceName, Core: core})
		if err != nil {
			return fmt.Errorf("failed to build server transport: %w", err)
		}

		logger.InfoContext(ctx, "serving", "service", serviceName)

		for {
			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "shutting down")
				return nil
			default:
			}

			requestID, meta, body, err := srv.ReceiveRequest(ctx, nil)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if errors.Is(err, transport.ErrReceiveTimeout) {
					continue
				}
				logger.ErrorContext(ctx, "receive failed", logging.Err(err))
				continue
			}

			if err := srv.SendResponse(ctx, requestID, meta, body); err != nil {
				logger.WithRequest(*requestID).ErrorContext(ctx, "send response failed", logging.Err(err))
			}
		}
	},
}
