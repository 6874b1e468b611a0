package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaygate/transport/internal/client"
	"github.com/relaygate/transport/internal/transport"
)

var (
	callBody    string
	callAction  string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <service-name>",
	Short: "Send one request through the Client Transport and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceName, err := requireServiceName(args)
		if err != nil {
			return err
		}

		var body any
		if callBody != "" {
			if err := json.Unmarshal([]byte(callBody), &body); err != nil {
				return fmt.Errorf("--body is not valid JSON: %w", err)
			}
		}

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

		core, err := buildCore(transport.RoleClient, b, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build client core: %w", err)
		}

		transp, err := client.New(client.Config{ServiceName: serviceName, Core: core, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to build client transport: %w", err)
		}

		caller, err := transp.NewCaller()
		if err != nil {
			return fmt.Errorf("failed to build caller: %w", err)
		}

		requestID := time.Now().UnixNano()
		meta := map[string]any{}
		if callAction != "" {
			meta["action"] = callAction
		}

		var timeout *time.Duration
		if callTimeout > 0 {
			timeout = &callTimeout
		}

		if err := caller.SendRequest(ctx, &requestID, meta, body, nil); err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		_, respMeta, respBody, err := caller.ReceiveResponse(ctx, timeout)
		if err != nil {
			return fmt.Errorf("receive response: %w", err)
		}

		out, err := json.MarshalIndent(map[string]any{"meta": respMeta, "body": respBody}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callBody, "body", "", "request body, as a JSON value")
	callCmd.Flags().StringVar(&callAction, "action", "", "request action, stored in meta")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "receive timeout (defaults to the configured value)")
}
