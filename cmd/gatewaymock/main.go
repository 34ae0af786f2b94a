// Command gatewaymock runs an in-memory sandbox payment gateway for local
// development against the sandbox provider.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	var (
		addr          string
		apiKey        string
		webhookURL    string
		webhookSecret string
		webhookDelay  time.Duration
	)

	root := &cobra.Command{
		Use:   "gatewaymock",
		Short: "In-memory sandbox payment gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

			g := newGateway(webhookURL, webhookSecret, logger)
			g.webhookDelay = webhookDelay

			handler := loggingMiddleware(logger, apiKeyMiddleware(apiKey, g.routes()))
			logger.Info("Gateway mock listening", "addr", addr, "webhookUrl", webhookURL)

			server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
			return server.ListenAndServe()
		},
	}
	root.Flags().StringVar(&addr, "addr", ":8085", "listen address")
	root.Flags().StringVar(&apiKey, "api-key", "sandbox-key", "expected X-Api-Key")
	root.Flags().StringVar(&webhookURL, "webhook-url", "http://localhost:8080/webhooks/sandbox", "where events are posted, empty disables webhooks")
	root.Flags().StringVar(&webhookSecret, "webhook-secret", "sandbox-webhook-secret", "HMAC secret for X-Sandbox-Signature")
	root.Flags().DurationVar(&webhookDelay, "webhook-delay", 500*time.Millisecond, "delay before an event is posted")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
