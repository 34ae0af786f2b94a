package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"payment-service/internal/config"
	"payment-service/internal/kafka"
	"payment-service/internal/logging"
	"payment-service/internal/model"
)

func eventsCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print payment events published to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return err
			}
			logger := logging.GetLogger(cfg.Logs)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reader := kafka.NewReader(cfg.Kafka, group)
			defer reader.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return kafka.ReadPaymentEvents(ctx, reader, logger, func(ctx context.Context, e model.PaymentEvent) error {
				return enc.Encode(e)
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "paymentd-events", "Kafka consumer group")

	return cmd
}
