package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		b, err := buildBackend(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build backend: %w", err)
		}
		defer b.Close()

		queueKeys := []string{"pysoa:service.doctor", "pysoa:service.doctor.doctor!doctor"}

		for _, key := range queueKeys {
			conn, err := b.GetConnection(ctx, key)
			if err != nil {
				return fmt.Errorf("get connection for %q: %w", key, err)
			}
			if err := conn.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping via %q: %w", key, err)
			}
			fmt.Printf("ok: %s backend reachable for queue key %q\n", cfg.Backend.Type, key)
		}

		return nil
	},
}
