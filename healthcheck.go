package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"collab-chat/internal/config"
	grpcclient "collab-chat/internal/grpc"
)

// defaultGRPCPort is probed when GRPC_PORT is unset.
const defaultGRPCPort = "9083"

func healthAddr(port string) string {
	if port == "" {
		port = defaultGRPCPort
	}
	return "localhost:" + port
}

func NewHealthcheckCommand(cfg *config.Config) *cobra.Command {
	addr := healthAddr(cfg.GRPCPort)
	timeout := 3 * time.Second

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Query the gRPC health service of a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := grpcclient.DialHealth(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ok, err := client.Serving(ctx, grpcclient.RelayService)
			if err != nil {
				return errors.WithMessage(err, "health check failed")
			}
			if !ok {
				return errors.New("relay is not serving")
			}
			cmd.Println("SERVING")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", addr, "gRPC health address")
	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "Check timeout")
	return cmd
}
